package workflow

import (
	"time"

	"github.com/cschleiden/loanflow/internal/workflowstate"
)

// Now returns the current logical time of the workflow, which is deterministic across replays
func Now(ctx Context) time.Time {
	wfState := workflowstate.WorkflowState(ctx)
	return wfState.Time()
}
