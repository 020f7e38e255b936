package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/core"
	"github.com/redis/go-redis/v9"
)

func (rb *redisBackend) SignalWorkflow(ctx context.Context, instanceID string, event *history.Event) error {
	// Only the active execution receives signals
	executionID, err := rb.rdb.Get(ctx, rb.keys.activeInstanceExecutionKey(instanceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return backend.ErrInstanceNotFound
		}

		return fmt.Errorf("reading active execution: %w", err)
	}

	return rb.addPendingEvent(ctx, core.NewWorkflowInstance(instanceID, executionID), event)
}
