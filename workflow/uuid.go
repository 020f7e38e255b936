package workflow

import (
	"github.com/cschleiden/loanflow/internal/workflowstate"
	"github.com/google/uuid"
)

// NewUUID returns a random UUID that is stable across replays of the same workflow execution
func NewUUID(ctx Context) string {
	wfState := workflowstate.WorkflowState(ctx)

	id, err := uuid.NewRandomFromReader(wfState.Rand())
	if err != nil {
		panic(err)
	}

	return id.String()
}
