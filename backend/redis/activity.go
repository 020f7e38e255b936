package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/redis/taskqueue"
	"github.com/cschleiden/loanflow/core"
	"github.com/redis/go-redis/v9"
)

type activityData struct {
	Instance *core.WorkflowInstance `json:"instance,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Event    *history.Event         `json:"event,omitempty"`
}

func (rb *redisBackend) scheduleActivityP(ctx context.Context, p redis.Pipeliner, instance *core.WorkflowInstance, event *history.Event) error {
	data, err := json.Marshal(&activityData{
		Instance: instance,
		ID:       event.ID,
		Event:    event,
	})
	if err != nil {
		return fmt.Errorf("marshaling activity: %w", err)
	}

	p.HSet(ctx, rb.keys.activitiesKey(), event.ID, string(data))

	return rb.activityQueue.Enqueue(ctx, p, event.ID)
}

func (rb *redisBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	id, err := rb.activityQueue.Dequeue(ctx, rb.options.ActivityLockTimeout)
	if err != nil {
		return nil, err
	}

	if id == nil {
		return nil, nil
	}

	val, err := rb.rdb.HGet(ctx, rb.keys.activitiesKey(), *id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Activity was already completed
			return nil, rb.activityQueue.Complete(ctx, *id, "")
		}

		return nil, fmt.Errorf("reading activity: %w", err)
	}

	var data activityData
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling activity: %w", err)
	}

	return &backend.ActivityTask{
		ID:               data.ID,
		WorkflowInstance: data.Instance,
		Event:            data.Event,
	}, nil
}

func (rb *redisBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	if err := rb.activityQueue.Extend(ctx, task.ID, rb.options.ActivityLockTimeout); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	return nil
}

func (rb *redisBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	if err := rb.activityQueue.Owned(ctx, task.ID); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	instance := task.WorkflowInstance

	state, err := rb.readInstanceState(ctx, instance)
	if err != nil {
		return err
	}

	p := rb.rdb.TxPipeline()

	p.HDel(ctx, rb.keys.activitiesKey(), task.ID)

	// The result of an activity of a finished instance has nowhere to go
	if state.State == core.WorkflowInstanceStateActive {
		if err := appendEventsP(ctx, p, rb.keys.pendingEventsKey(instance), []*history.Event{result}); err != nil {
			return fmt.Errorf("adding activity result: %w", err)
		}

		if err := rb.workflowQueue.Enqueue(ctx, p, instanceSegment(instance)); err != nil {
			return fmt.Errorf("queueing workflow task: %w", err)
		}
	}

	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("completing activity: %w", err)
	}

	if err := rb.activityQueue.Complete(ctx, task.ID, ""); err != nil {
		if errors.Is(err, taskqueue.ErrLeaseLost) {
			return backend.ErrTaskLockLost
		}

		return err
	}

	return nil
}
