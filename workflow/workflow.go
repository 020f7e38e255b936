package workflow

import (
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowstate"
)

type (
	Context  = sync.Context
	Instance = core.WorkflowInstance
	Workflow = any
	Activity = any
)

// WorkflowInstance returns the instance the current workflow is executing as
func WorkflowInstance(ctx Context) *Instance {
	wfState := workflowstate.WorkflowState(ctx)
	return wfState.Instance()
}
