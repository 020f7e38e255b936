package history

import (
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

type ExecutionCompletedAttributes struct {
	Result payload.Payload       `json:"result,omitempty"`
	Error  *workflowerrors.Error `json:"error,omitempty"`
}

type ExecutionCanceledAttributes struct {
}

type WorkflowTaskStartedAttributes struct {
}
