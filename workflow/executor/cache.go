package executor

import (
	"context"

	"github.com/cschleiden/loanflow/core"
)

// ExecutorCache keeps executors of active workflow instances around between tasks, so that
// the next task for an instance does not have to replay its full history.
type ExecutorCache interface {
	Store(ctx context.Context, instance *core.WorkflowInstance, e WorkflowExecutor) error
	Evict(ctx context.Context, instance *core.WorkflowInstance) error
	Get(ctx context.Context, instance *core.WorkflowInstance) (WorkflowExecutor, bool, error)

	// StartEviction runs expiration until ctx is canceled
	StartEviction(ctx context.Context)
}
