package workflow

import (
	"log/slog"

	"github.com/cschleiden/loanflow/internal/workflowstate"
)

// Logger returns a logger that suppresses records while the workflow is replaying
func Logger(ctx Context) *slog.Logger {
	wfState := workflowstate.WorkflowState(ctx)
	return wfState.Logger()
}
