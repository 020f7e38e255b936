package history

import (
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

type ActivityCompletedAttributes struct {
	Result payload.Payload `json:"result,omitempty"`

	// Attempts is the number of attempts it took to complete the activity
	Attempts int `json:"attempts,omitempty"`
}

type ActivityFailedAttributes struct {
	Error *workflowerrors.Error `json:"error,omitempty"`

	Attempts int `json:"attempts,omitempty"`
}
