package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/core"
	"github.com/redis/go-redis/v9"
)

type instanceState struct {
	Instance     *core.WorkflowInstance     `json:"instance,omitempty"`
	WorkflowName string                     `json:"workflow_name,omitempty"`
	State        core.WorkflowInstanceState `json:"state,omitempty"`

	CreatedAt   time.Time  `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	LastSequenceID int64 `json:"last_sequence_id,omitempty"`
}

func (rb *redisBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	a, ok := event.Attributes.(*history.ExecutionStartedAttributes)
	if !ok {
		return fmt.Errorf("expected %v event, got %v", history.EventType_WorkflowExecutionStarted, event.Type)
	}

	// At most one active execution per instance id
	created, err := rb.rdb.SetNX(ctx, rb.keys.activeInstanceExecutionKey(instance.InstanceID), instance.ExecutionID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserving instance id: %w", err)
	}

	if !created {
		return backend.ErrInstanceAlreadyExists
	}

	p := rb.rdb.TxPipeline()

	if err := rb.setInstanceStateP(ctx, p, &instanceState{
		Instance:     instance,
		WorkflowName: a.Name,
		State:        core.WorkflowInstanceStateActive,
		CreatedAt:    time.Now(),
	}); err != nil {
		return err
	}

	p.Set(ctx, rb.keys.latestInstanceExecutionKey(instance.InstanceID), instance.ExecutionID, 0)
	p.SAdd(ctx, rb.keys.instancesActive(), instanceSegment(instance))

	if err := appendEventsP(ctx, p, rb.keys.pendingEventsKey(instance), []*history.Event{event}); err != nil {
		return fmt.Errorf("adding event: %w", err)
	}

	// Queue workflow instance task
	if err := rb.workflowQueue.Enqueue(ctx, p, instanceSegment(instance)); err != nil {
		return fmt.Errorf("queueing workflow task: %w", err)
	}

	if _, err := p.Exec(ctx); err != nil {
		// Release the instance id again
		rb.rdb.Del(ctx, rb.keys.activeInstanceExecutionKey(instance.InstanceID))

		return fmt.Errorf("creating workflow instance: %w", err)
	}

	rb.options.Logger.DebugContext(ctx, "created workflow instance", "instance", instance.String())

	return nil
}

func (rb *redisBackend) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	state, err := rb.readInstanceState(ctx, instance)
	if err != nil {
		return err
	}

	// Nothing to cancel
	if state.State == core.WorkflowInstanceStateFinished {
		return nil
	}

	return rb.addPendingEvent(ctx, instance, event)
}

func (rb *redisBackend) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	// Sequence ids are contiguous and start at 1, the event following lastSequenceID is at index lastSequenceID
	var start int64
	if lastSequenceID != nil {
		start = *lastSequenceID
	}

	return readEvents(ctx, rb.rdb, rb.keys.historyKey(instance), start)
}

func (rb *redisBackend) GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	state, err := rb.readInstanceState(ctx, instance)
	if err != nil {
		return core.WorkflowInstanceStateActive, err
	}

	return state.State, nil
}

func (rb *redisBackend) GetLatestInstance(ctx context.Context, instanceID string) (*core.WorkflowInstance, error) {
	executionID, err := rb.rdb.Get(ctx, rb.keys.latestInstanceExecutionKey(instanceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("getting latest instance: %w", err)
	}

	return core.NewWorkflowInstance(instanceID, executionID), nil
}

func (rb *redisBackend) readInstanceState(ctx context.Context, instance *core.WorkflowInstance) (*instanceState, error) {
	return rb.readInstanceStateFromSegment(ctx, instanceSegment(instance))
}

func (rb *redisBackend) readInstanceStateFromSegment(ctx context.Context, segment string) (*instanceState, error) {
	val, err := rb.rdb.Get(ctx, rb.keys.instanceKeyFromSegment(segment)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("reading instance: %w", err)
	}

	var state instanceState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling instance state: %w", err)
	}

	return &state, nil
}

func (rb *redisBackend) setInstanceStateP(ctx context.Context, p redis.Pipeliner, state *instanceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling instance state: %w", err)
	}

	return p.Set(ctx, rb.keys.instanceKey(state.Instance), string(data), 0).Err()
}

// addPendingEvent adds a new event for the given instance and queues a workflow task for it
func (rb *redisBackend) addPendingEvent(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	p := rb.rdb.TxPipeline()

	if err := appendEventsP(ctx, p, rb.keys.pendingEventsKey(instance), []*history.Event{event}); err != nil {
		return fmt.Errorf("adding event: %w", err)
	}

	if err := rb.workflowQueue.Enqueue(ctx, p, instanceSegment(instance)); err != nil {
		return fmt.Errorf("queueing workflow task: %w", err)
	}

	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("adding pending event: %w", err)
	}

	return nil
}
