package redis

import (
	"context"
	"fmt"

	"github.com/cschleiden/loanflow/backend"
)

func (rb *redisBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	activeInstances, err := rb.rdb.SCard(ctx, rb.keys.instancesActive()).Result()
	if err != nil {
		return nil, fmt.Errorf("getting active instances: %w", err)
	}

	s.ActiveWorkflowInstances = activeInstances

	// Workflow instances ready to be picked up
	pendingWorkflows, err := rb.workflowQueue.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting pending workflow tasks: %w", err)
	}

	s.PendingWorkflowTasks = pendingWorkflows

	pendingActivities, err := rb.rdb.HLen(ctx, rb.keys.activitiesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("getting pending activities: %w", err)
	}

	s.PendingActivities = pendingActivities

	return s, nil
}
