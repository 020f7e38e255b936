package test

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func startedEvent() *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
		Name: "LoanWorkflow",
	})
}

func createInstance(t *testing.T, ctx context.Context, b TestBackend) *core.WorkflowInstance {
	wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, startedEvent()))

	return wfi
}

// completeStart completes the first task of the given instance, recording the started event in
// history and scheduling the given activities
func completeStart(t *testing.T, ctx context.Context, b TestBackend, state core.WorkflowInstanceState, activities ...*history.Event) *backend.WorkflowTask {
	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	executed := []*history.Event{
		history.NewHistoryEvent(1, time.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{}),
	}
	for _, e := range task.NewEvents {
		e.SequenceID = int64(len(executed) + 1)
		executed = append(executed, e)
	}

	for _, a := range activities {
		e := history.NewHistoryEvent(int64(len(executed)+1), a.Timestamp, a.Type, a.Attributes, history.ScheduleEventID(a.ScheduleEventID))
		executed = append(executed, e)
	}

	if state == core.WorkflowInstanceStateFinished {
		executed = append(executed, history.NewHistoryEvent(int64(len(executed)+1), time.Now(), history.EventType_WorkflowExecutionFinished, &history.ExecutionCompletedAttributes{}))
	}

	require.NoError(t, b.CompleteWorkflowTask(ctx, task, state, executed, activities))

	return task
}

func activityScheduledEvent(scheduleEventID int64) *history.Event {
	return history.NewPendingEvent(
		time.Now(),
		history.EventType_ActivityScheduled,
		&history.ActivityScheduledAttributes{
			Name:                "ConvertCurrency",
			StartToCloseTimeout: time.Second,
		},
		history.ScheduleEventID(scheduleEventID),
	)
}

func BackendTest(t *testing.T, setup Setup, teardown Teardown) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b TestBackend)
	}{
		{
			name: "GetWorkflowTask_ReturnsNilWhenTimeout",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				ctx, cancel := context.WithTimeout(ctx, time.Millisecond)
				defer cancel()

				task, _ := b.GetWorkflowTask(ctx)
				require.Nil(t, task)
			},
		},
		{
			name: "GetActivityTask_ReturnsNilWhenTimeout",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				ctx, cancel := context.WithTimeout(ctx, time.Millisecond)
				defer cancel()

				task, _ := b.GetActivityTask(ctx)
				require.Nil(t, task)
			},
		},
		{
			name: "CreateWorkflowInstance_DoesNotError",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())

				err := b.CreateWorkflowInstance(ctx, wfi, startedEvent())
				require.NoError(t, err)

				state, err := b.GetWorkflowInstanceState(ctx, wfi)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateActive, state)
			},
		},
		{
			name: "CreateWorkflowInstance_SameInstanceIDErrors",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				instanceID := uuid.NewString()

				err := b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance(instanceID, uuid.NewString()), startedEvent())
				require.NoError(t, err)

				err = b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance(instanceID, uuid.NewString()), startedEvent())
				require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
			},
		},
		{
			name: "CreateWorkflowInstance_NewExecutionAfterFinished",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				first := createInstance(t, ctx, b)
				completeStart(t, ctx, b, core.WorkflowInstanceStateFinished)

				second := core.NewWorkflowInstance(first.InstanceID, uuid.NewString())
				require.NoError(t, b.CreateWorkflowInstance(ctx, second, startedEvent()))

				latest, err := b.GetLatestInstance(ctx, first.InstanceID)
				require.NoError(t, err)
				require.Equal(t, second.ExecutionID, latest.ExecutionID)
			},
		},
		{
			name: "GetLatestInstance_NotFound",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				_, err := b.GetLatestInstance(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetWorkflowInstanceState_NotFound",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				_, err := b.GetWorkflowInstanceState(ctx, core.NewWorkflowInstance(uuid.NewString(), uuid.NewString()))
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetWorkflowTask_ReturnsTask",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)

				require.NoError(t, err)
				require.NotNil(t, task)
				require.Equal(t, wfi.InstanceID, task.WorkflowInstance.InstanceID)
				require.Equal(t, wfi.ExecutionID, task.WorkflowInstance.ExecutionID)
				require.Equal(t, core.WorkflowInstanceStateActive, task.WorkflowInstanceState)
				require.Equal(t, int64(0), task.LastSequenceID)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_WorkflowExecutionStarted, task.NewEvents[0].Type)
				require.Equal(t, "LoanWorkflow", task.NewEvents[0].Attributes.(*history.ExecutionStartedAttributes).Name)
			},
		},
		{
			name: "GetWorkflowTask_LocksTask",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				createInstance(t, ctx, b)

				// Get and lock only task
				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)

				// First task is locked, second call should return nil
				ctx, cancel := context.WithTimeout(ctx, time.Millisecond*100)
				defer cancel()

				task, err = b.GetWorkflowTask(ctx)

				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "ExtendWorkflowTask_ExtendsLock",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)

				require.NoError(t, b.ExtendWorkflowTask(ctx, task))
			},
		},
		{
			name: "CompleteWorkflowTask_ReturnsErrorIfNotLocked",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)

				err := b.CompleteWorkflowTask(ctx, &backend.WorkflowTask{
					ID:               wfi.String(),
					WorkflowInstance: wfi,
				}, core.WorkflowInstanceStateActive, []*history.Event{}, []*history.Event{})

				require.ErrorIs(t, err, backend.ErrTaskLockLost)
			},
		},
		{
			name: "CompleteWorkflowTask_AddsNewEventsToHistory",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)

				completeStart(t, ctx, b, core.WorkflowInstanceStateActive, activityScheduledEvent(1))

				h, err := b.GetWorkflowInstanceHistory(ctx, wfi, nil)
				require.NoError(t, err)
				require.Len(t, h, 3)
				require.Equal(t, history.EventType_WorkflowTaskStarted, h[0].Type)
				require.Equal(t, history.EventType_WorkflowExecutionStarted, h[1].Type)
				require.Equal(t, history.EventType_ActivityScheduled, h[2].Type)
				for i, e := range h {
					require.Equal(t, int64(i+1), e.SequenceID)
				}

				lastSequenceID := int64(1)
				h, err = b.GetWorkflowInstanceHistory(ctx, wfi, &lastSequenceID)
				require.NoError(t, err)
				require.Len(t, h, 2)
				require.Equal(t, int64(2), h[0].SequenceID)
			},
		},
		{
			name: "CompleteWorkflowTask_SchedulesActivities",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)

				completeStart(t, ctx, b, core.WorkflowInstanceStateActive, activityScheduledEvent(1))

				at, err := b.GetActivityTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, at)
				require.Equal(t, wfi.InstanceID, at.WorkflowInstance.InstanceID)
				require.Equal(t, history.EventType_ActivityScheduled, at.Event.Type)
				require.Equal(t, int64(1), at.Event.ScheduleEventID)
				require.Equal(t, "ConvertCurrency", at.Event.Attributes.(*history.ActivityScheduledAttributes).Name)

				// Locked
				ctx2, cancel := context.WithTimeout(ctx, time.Millisecond*100)
				defer cancel()
				next, err := b.GetActivityTask(ctx2)
				require.NoError(t, err)
				require.Nil(t, next)

				require.NoError(t, b.ExtendActivityTask(ctx, at))

				result := history.NewPendingEvent(time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
					Attempts: 2,
				}, history.ScheduleEventID(1))
				require.NoError(t, b.CompleteActivityTask(ctx, at, result))

				// Completing again fails
				err = b.CompleteActivityTask(ctx, at, result)
				require.ErrorIs(t, err, backend.ErrTaskLockLost)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Equal(t, int64(3), task.LastSequenceID)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_ActivityCompleted, task.NewEvents[0].Type)
				require.Equal(t, int64(1), task.NewEvents[0].ScheduleEventID)
				require.Equal(t, 2, task.NewEvents[0].Attributes.(*history.ActivityCompletedAttributes).Attempts)
			},
		},
		{
			name: "CompleteWorkflowTask_FinishesInstance",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)

				completeStart(t, ctx, b, core.WorkflowInstanceStateFinished)

				state, err := b.GetWorkflowInstanceState(ctx, wfi)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, state)

				// Signals cannot reach finished instances
				c := client.New(b)
				err = c.SignalWorkflow(ctx, wfi.InstanceID, "task-completed", "T1")
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)

				// Canceling a finished instance has no effect
				require.NoError(t, b.CancelWorkflowInstance(ctx, wfi, history.NewWorkflowCancellationEvent(time.Now())))

				ctx2, cancel := context.WithTimeout(ctx, time.Millisecond*100)
				defer cancel()
				task, err := b.GetWorkflowTask(ctx2)
				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "SignalWorkflow_ErrorWhenInstanceDoesNotExist",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				c := client.New(b)
				err := c.SignalWorkflow(ctx, "does-not-exist", "signal", "value")
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "SignalWorkflow_AddsPendingEvent",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)
				completeStart(t, ctx, b, core.WorkflowInstanceStateActive)

				c := client.New(b)
				require.NoError(t, c.SignalWorkflow(ctx, wfi.InstanceID, "task-completed", "T1"))

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_SignalReceived, task.NewEvents[0].Type)
				require.Equal(t, "task-completed", task.NewEvents[0].Attributes.(*history.SignalReceivedAttributes).Name)
			},
		},
		{
			name: "CancelWorkflowInstance_AddsPendingEvent",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := createInstance(t, ctx, b)
				completeStart(t, ctx, b, core.WorkflowInstanceStateActive)

				require.NoError(t, b.CancelWorkflowInstance(ctx, wfi, history.NewWorkflowCancellationEvent(time.Now())))

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_WorkflowExecutionCanceled, task.NewEvents[0].Type)
			},
		},
		{
			name: "CancelWorkflowInstance_NotFound",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
				err := b.CancelWorkflowInstance(ctx, wfi, history.NewWorkflowCancellationEvent(time.Now()))
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetStats_CountsInstancesAndTasks",
			f: func(t *testing.T, ctx context.Context, b TestBackend) {
				createInstance(t, ctx, b)

				s, err := b.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(1), s.ActiveWorkflowInstances)
				require.Equal(t, int64(1), s.PendingWorkflowTasks)
				require.Equal(t, int64(0), s.PendingActivities)

				completeStart(t, ctx, b, core.WorkflowInstanceStateActive, activityScheduledEvent(1))

				s, err = b.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(1), s.ActiveWorkflowInstances)
				require.Equal(t, int64(0), s.PendingWorkflowTasks)
				require.Equal(t, int64(1), s.PendingActivities)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}
