package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/redis/taskqueue"
	"github.com/cschleiden/loanflow/core"
)

func (rb *redisBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	segment, err := rb.workflowQueue.Dequeue(ctx, rb.options.WorkflowLockTimeout)
	if err != nil {
		return nil, err
	}

	if segment == nil {
		return nil, nil
	}

	state, err := rb.readInstanceStateFromSegment(ctx, *segment)
	if err != nil {
		return nil, fmt.Errorf("reading workflow instance: %w", err)
	}

	instance := state.Instance
	pendingKey := rb.keys.pendingEventsKey(instance)

	// Events arriving for a finished instance are never processed
	if state.State == core.WorkflowInstanceStateFinished {
		if err := rb.rdb.Del(ctx, pendingKey).Err(); err != nil {
			return nil, fmt.Errorf("removing pending events of finished instance: %w", err)
		}

		return nil, rb.workflowQueue.Complete(ctx, *segment, "")
	}

	newEvents, err := readEvents(ctx, rb.rdb, pendingKey, 0)
	if err != nil {
		return nil, fmt.Errorf("reading pending events: %w", err)
	}

	// Return if there aren't any new events
	if len(newEvents) == 0 {
		return nil, rb.workflowQueue.Complete(ctx, *segment, pendingKey)
	}

	return &backend.WorkflowTask{
		ID:                    *segment,
		WorkflowInstance:      instance,
		WorkflowInstanceState: state.State,
		LastSequenceID:        state.LastSequenceID,
		NewEvents:             newEvents,
	}, nil
}

func (rb *redisBackend) ExtendWorkflowTask(ctx context.Context, task *backend.WorkflowTask) error {
	if err := rb.workflowQueue.Extend(ctx, instanceSegment(task.WorkflowInstance), rb.options.WorkflowLockTimeout); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	return nil
}

func (rb *redisBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	executedEvents, activityEvents []*history.Event,
) error {
	instance := task.WorkflowInstance
	segment := instanceSegment(instance)

	if err := rb.workflowQueue.Owned(ctx, segment); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	is, err := rb.readInstanceState(ctx, instance)
	if err != nil {
		return err
	}

	is.State = state
	if len(executedEvents) > 0 {
		is.LastSequenceID = executedEvents[len(executedEvents)-1].SequenceID
	}

	if state == core.WorkflowInstanceStateFinished && is.CompletedAt == nil {
		t := time.Now()
		is.CompletedAt = &t
	}

	p := rb.rdb.TxPipeline()

	if err := rb.setInstanceStateP(ctx, p, is); err != nil {
		return err
	}

	// Add events from last execution to history
	if err := appendEventsP(ctx, p, rb.keys.historyKey(instance), executedEvents); err != nil {
		return fmt.Errorf("adding history events: %w", err)
	}

	pendingKey := rb.keys.pendingEventsKey(instance)

	// Remove handled events. Events added while the task was running are kept.
	p.LTrim(ctx, pendingKey, int64(len(task.NewEvents)), -1)

	if state == core.WorkflowInstanceStateFinished {
		p.Del(ctx, pendingKey)
		p.Del(ctx, rb.keys.activeInstanceExecutionKey(instance.InstanceID))
		p.SRem(ctx, rb.keys.instancesActive(), segment)
	} else {
		for _, event := range activityEvents {
			if err := rb.scheduleActivityP(ctx, p, instance, event); err != nil {
				return fmt.Errorf("scheduling activity: %w", err)
			}
		}
	}

	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("completing workflow task: %w", err)
	}

	// Release the instance and queue it again if new events arrived in the meantime
	if err := rb.workflowQueue.Complete(ctx, segment, pendingKey); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	return nil
}
