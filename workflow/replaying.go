package workflow

import (
	"github.com/cschleiden/loanflow/internal/workflowstate"
)

func Replaying(ctx Context) bool {
	wfState := workflowstate.WorkflowState(ctx)
	return wfState.Replaying()
}
