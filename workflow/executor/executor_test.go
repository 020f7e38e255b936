package executor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/command"
	"github.com/cschleiden/loanflow/internal/fn"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/registry"
	wf "github.com/cschleiden/loanflow/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testHistoryProvider struct {
	history []*history.Event
}

func (t *testHistoryProvider) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	return t.history, nil
}

func newExecutor(r *registry.Registry, i *core.WorkflowInstance, historyProvider WorkflowHistoryProvider) (*executor, error) {
	e, err := NewExecutor(slog.Default(), r, converter.DefaultConverter, historyProvider, i, clock.New(), 10_000)

	return e.(*executor), err
}

func activity1(ctx context.Context, r int) (int, error) {
	return r, nil
}

func Test_Executor(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider)
	}{
		{
			name: "Simple_workflow_to_completion",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowHits := 0
				wf := func(ctx sync.Context) error {
					workflowHits++
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(wf))

				result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf))
				require.NoError(t, err)

				require.Equal(t, 1, workflowHits)
				require.True(t, e.workflow.Completed())
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
				require.Len(t, e.workflowState.Commands(), 1)
				require.IsType(t, &command.CompleteWorkflowCommand{}, e.workflowState.Commands()[0])

				// TaskStarted, ExecutionStarted, ExecutionFinished
				require.Len(t, result.Executed, 3)
				for i, event := range result.Executed {
					require.Equal(t, int64(i+1), event.SequenceID)
				}
				require.Equal(t, history.EventType_WorkflowExecutionFinished, result.Executed[2].Type)
			},
		},
		{
			name: "Workflow_result_is_recorded",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				wf := func(ctx sync.Context, amount int) (int, error) {
					return amount * 2, nil
				}

				require.NoError(t, r.RegisterWorkflow(wf))

				result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf, 21))
				require.NoError(t, err)

				finished := result.Executed[len(result.Executed)-1]
				a := finished.Attributes.(*history.ExecutionCompletedAttributes)
				require.Nil(t, a.Error)

				var v int
				require.NoError(t, converter.DefaultConverter.From(a.Result, &v))
				require.Equal(t, 42, v)
			},
		},
		{
			name: "Workflow_with_activity_command",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowActivityHit := 0
				workflowWithActivity := func(ctx sync.Context) error {
					workflowActivityHit++
					if _, err := wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx); err != nil {
						panic("error getting activity 1 result")
					}
					workflowActivityHit++
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithActivity))
				require.NoError(t, r.RegisterActivity(activity1))

				result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflowWithActivity))
				require.NoError(t, err)
				require.Nil(t, e.workflow.err)
				require.Equal(t, 1, workflowActivityHit)
				require.Equal(t, core.WorkflowInstanceStateActive, result.State)
				require.Len(t, e.workflowState.Commands(), 1)

				inputs, _ := converter.DefaultConverter.To(42)
				cmd := e.workflowState.Commands()[0].(*command.ScheduleActivityCommand)
				require.Equal(t, command.CommandState_Committed, cmd.State())
				require.Equal(t, "activity1", cmd.Name)
				require.Equal(t, []payload.Payload{inputs}, cmd.Inputs)

				require.Len(t, result.ActivityEvents, 1)
				a := result.ActivityEvents[0].Attributes.(*history.ActivityScheduledAttributes)
				require.Equal(t, "activity1", a.Name)
				require.Equal(t, wf.DefaultActivityOptions.StartToCloseTimeout, a.StartToCloseTimeout)
				require.NotNil(t, a.RetryPolicy)
				require.Equal(t, int64(1), result.ActivityEvents[0].ScheduleEventID)
			},
		},
		{
			name: "Workflow_with_activity_replay",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowActivityHit := 0
				workflowWithActivity := func(ctx sync.Context) error {
					workflowActivityHit++
					if _, err := wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx); err != nil {
						panic("error getting activity 1 result")
					}
					workflowActivityHit++
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithActivity))
				require.NoError(t, r.RegisterActivity(activity1))

				hp.history = activityHistory(fn.Name(workflowWithActivity), "activity1")

				result, err := e.ExecuteTask(context.Background(), continueTask(i.InstanceID, nil, 3))
				require.NoError(t, err)
				require.Nil(t, e.workflow.err)
				require.Equal(t, 2, workflowActivityHit)
				require.True(t, e.workflow.Completed())
				require.Len(t, e.workflowState.Commands(), 2)

				// Replayed activity is not scheduled again
				require.Empty(t, result.ActivityEvents)
				require.Equal(t, int64(4), result.Executed[0].SequenceID)
			},
		},
		{
			name: "Workflow_with_new_events",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowActivityHit := 0
				workflowWithActivity := func(ctx sync.Context) error {
					workflowActivityHit++
					if _, err := wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx); err != nil {
						panic("error getting activity 1 result")
					}
					workflowActivityHit++
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithActivity))
				require.NoError(t, r.RegisterActivity(activity1))

				taskResult, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflowWithActivity))
				require.NoError(t, err)
				require.Equal(t, 1, workflowActivityHit)
				require.False(t, e.workflow.Completed())

				result, _ := converter.DefaultConverter.To(42)
				newTask := continueTask(i.InstanceID, []*history.Event{
					history.NewPendingEvent(
						time.Now(),
						history.EventType_ActivityCompleted,
						&history.ActivityCompletedAttributes{Result: result, Attempts: 1},
						history.ScheduleEventID(1),
					),
				}, taskResult.Executed[len(taskResult.Executed)-1].SequenceID)

				_, err = e.ExecuteTask(context.Background(), newTask)
				require.NoError(t, err)
				require.Nil(t, e.workflow.err)
				require.Equal(t, 2, workflowActivityHit)
				require.True(t, e.workflow.Completed())
				require.Len(t, e.workflowState.Commands(), 2)
				require.Equal(t, command.CommandState_Done, e.workflowState.Commands()[0].State())
			},
		},
		{
			name: "Activity_failure_is_returned_to_workflow",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				var activityErr error
				workflowWithActivity := func(ctx sync.Context) error {
					_, activityErr = wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx)
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithActivity))
				require.NoError(t, r.RegisterActivity(activity1))

				taskResult, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflowWithActivity))
				require.NoError(t, err)

				failure := workflowerrors.FromError(workflowerrors.NewPermanentError(errors.New("rejected")))

				_, err = e.ExecuteTask(context.Background(), continueTask(i.InstanceID, []*history.Event{
					history.NewPendingEvent(
						time.Now(),
						history.EventType_ActivityFailed,
						&history.ActivityFailedAttributes{Error: failure, Attempts: 1},
						history.ScheduleEventID(1),
					),
				}, taskResult.Executed[len(taskResult.Executed)-1].SequenceID))
				require.NoError(t, err)

				require.True(t, e.workflow.Completed())
				require.Error(t, activityErr)
				require.False(t, wf.CanRetry(activityErr))

				var we *wf.Error
				require.ErrorAs(t, activityErr, &we)
				require.Equal(t, "activity1", we.Activity)
			},
		},
		{
			name: "Workflow_with_signal",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				var received string

				workflowWithSignal := func(ctx sync.Context) error {
					c := wf.NewSignalChannel[string](ctx, "signal1")
					received, _ = c.Receive(ctx)

					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithSignal))

				s, err := converter.DefaultConverter.To("approved")
				require.NoError(t, err)

				task := startWorkflowTask(i.InstanceID, workflowWithSignal)
				task.NewEvents = append(task.NewEvents, history.NewPendingEvent(
					time.Now(),
					history.EventType_SignalReceived,
					&history.SignalReceivedAttributes{
						Name: "signal1",
						Arg:  s,
					},
				))

				_, err = e.ExecuteTask(context.Background(), task)
				require.NoError(t, err)
				require.Nil(t, e.workflow.err)
				require.Equal(t, "approved", received)
				require.True(t, e.workflow.Completed())
				require.Len(t, e.workflowState.Commands(), 1)
			},
		},
		{
			name: "Cancellation_cancels_workflow_context",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflow := func(ctx sync.Context) error {
					c := wf.NewSignalChannel[string](ctx, "never")
					c.Receive(ctx)

					return ctx.Err()
				}

				require.NoError(t, r.RegisterWorkflow(workflow))

				taskResult, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflow))
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateActive, taskResult.State)

				result, err := e.ExecuteTask(context.Background(), continueTask(i.InstanceID, []*history.Event{
					history.NewWorkflowCancellationEvent(time.Now()),
				}, taskResult.Executed[len(taskResult.Executed)-1].SequenceID))
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
				require.ErrorIs(t, e.workflow.Error(), sync.Canceled)
			},
		},
		{
			name: "Activity_after_cancellation_fails_immediately",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				var activityErr error
				workflow := func(ctx sync.Context) error {
					wf.NewSignalChannel[string](ctx, "never").Receive(ctx)

					_, activityErr = wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx)
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflow))
				require.NoError(t, r.RegisterActivity(activity1))

				taskResult, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflow))
				require.NoError(t, err)

				result, err := e.ExecuteTask(context.Background(), continueTask(i.InstanceID, []*history.Event{
					history.NewWorkflowCancellationEvent(time.Now()),
				}, taskResult.Executed[len(taskResult.Executed)-1].SequenceID))
				require.NoError(t, err)
				require.ErrorIs(t, activityErr, sync.Canceled)
				require.Empty(t, result.ActivityEvents)
			},
		},
		{
			name: "Completes_workflow_on_unhandled_error",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowPanic := func(ctx sync.Context) error {
					panic("wf error")
				}

				require.NoError(t, r.RegisterWorkflow(workflowPanic))

				r1, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflowPanic))
				require.NoError(t, err)
				require.Error(t, e.workflow.err)

				var pe *workflowerrors.PanicError
				require.ErrorAs(t, e.workflow.err, &pe)

				require.True(t, e.workflow.Completed())
				require.Len(t, e.workflowState.Commands(), 1)
				require.Len(t, pendingCommands(e.workflowState.Commands()), 0)
				require.Equal(t, core.WorkflowInstanceStateFinished, r1.State)
			},
		},
		{
			name: "Unknown_workflow_fails_instance",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				unregistered := func(ctx sync.Context) error {
					return nil
				}

				result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, unregistered))
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)

				a := result.Executed[len(result.Executed)-1].Attributes.(*history.ExecutionCompletedAttributes)
				require.NotNil(t, a.Error)
			},
		},
		{
			name: "Replay_with_different_activity_fails_workflow",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflowWithActivity := func(ctx sync.Context) error {
					_, err := wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx)
					return err
				}

				require.NoError(t, r.RegisterWorkflow(workflowWithActivity))
				require.NoError(t, r.RegisterActivity(activity1))

				hp.history = activityHistory(fn.Name(workflowWithActivity), "someOtherActivity")

				result, err := e.ExecuteTask(context.Background(), continueTask(i.InstanceID, nil, 3))
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)

				a := result.Executed[len(result.Executed)-1].Attributes.(*history.ExecutionCompletedAttributes)
				require.NotNil(t, a.Error)
				require.Contains(t, a.Error.Message, "different type of activity")
			},
		},
		{
			name: "Task_with_older_history_fails",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				wf := func(ctx sync.Context) error {
					c := wf.NewSignalChannel[int](ctx, "signal")
					c.Receive(ctx)
					return nil
				}

				require.NoError(t, r.RegisterWorkflow(wf))

				_, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf))
				require.NoError(t, err)

				_, err = e.ExecuteTask(context.Background(), continueTask(i.InstanceID, nil, 1))
				require.Error(t, err)
			},
		},
		{
			name: "Finished_instance_discards_events",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				s, _ := converter.DefaultConverter.To(1)

				task := continueTask(i.InstanceID, []*history.Event{
					history.NewPendingEvent(time.Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{Name: "late", Arg: s}),
				}, 5)
				task.WorkflowInstanceState = core.WorkflowInstanceStateFinished

				result, err := e.ExecuteTask(context.Background(), task)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
				require.Empty(t, result.Executed)
			},
		},
		{
			name: "Pending_futures_do_not_block_completion",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				workflow := func(ctx sync.Context) error {
					// Schedule but do not wait for the activity
					wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42)

					return nil
				}

				require.NoError(t, r.RegisterWorkflow(workflow))
				require.NoError(t, r.RegisterActivity(activity1))

				result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, workflow))
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
				require.Len(t, result.ActivityEvents, 1)
			},
		},
		{
			name: "Close_removes_any_goroutines",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				wf := func(ctx sync.Context) error {
					c := wf.NewSignalChannel[int](ctx, "signal")

					// Block workflow
					c.Receive(ctx)

					return nil
				}

				require.NoError(t, r.RegisterWorkflow(wf))

				goRoutines := runtime.NumGoroutine()

				_, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf))
				require.NoError(t, err)

				require.Equal(t, goRoutines+1, runtime.NumGoroutine())

				e.Close()

				require.Eventually(t, func() bool {
					return runtime.NumGoroutine() == goRoutines
				}, time.Second, time.Millisecond)
			},
		},
		{
			name: "Close_removes_any_goroutines_defer",
			f: func(t *testing.T, r *registry.Registry, e *executor, i *core.WorkflowInstance, hp *testHistoryProvider) {
				wf := func(ctx sync.Context) error {
					defer func() {
						wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 1)
					}()

					c := wf.NewSignalChannel[int](ctx, "signal")

					// Block workflow
					c.Receive(ctx)

					return nil
				}

				require.NoError(t, r.RegisterWorkflow(wf))
				require.NoError(t, r.RegisterActivity(activity1))

				_, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf))
				require.NoError(t, err)

				e.Close()

				goleak.VerifyNone(t)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := registry.New()

			i := core.NewWorkflowInstance(uuid.NewString(), "executionID")
			hp := &testHistoryProvider{}
			e, err := newExecutor(r, i, hp)
			require.NoError(t, err)
			tt.f(t, r, e, i, hp)

			e.Close()
		})
	}
}

func Test_Executor_MaxHistorySize(t *testing.T) {
	r := registry.New()

	wf := func(ctx sync.Context) error {
		return nil
	}
	require.NoError(t, r.RegisterWorkflow(wf))

	i := core.NewWorkflowInstance(uuid.NewString(), "executionID")
	e, err := NewExecutor(slog.Default(), r, converter.DefaultConverter, &testHistoryProvider{}, i, clock.New(), 2)
	require.NoError(t, err)
	defer e.Close()

	result, err := e.ExecuteTask(context.Background(), startWorkflowTask(i.InstanceID, wf))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateFinished, result.State)

	// Only one completion is recorded, even though the workflow also returned
	finished := 0
	for _, event := range result.Executed {
		if event.Type == history.EventType_WorkflowExecutionFinished {
			finished++
		}
	}
	require.Equal(t, 1, finished)
}

func activityHistory(workflowName, activityName string) []*history.Event {
	inputs, _ := converter.DefaultConverter.To(42)
	result, _ := converter.DefaultConverter.To(42)

	return []*history.Event{
		history.NewHistoryEvent(
			1,
			time.Now(),
			history.EventType_WorkflowExecutionStarted,
			&history.ExecutionStartedAttributes{
				Name:   workflowName,
				Inputs: []payload.Payload{},
			},
		),
		history.NewHistoryEvent(
			2,
			time.Now(),
			history.EventType_ActivityScheduled,
			&history.ActivityScheduledAttributes{
				Name:   activityName,
				Inputs: []payload.Payload{inputs},
			},
			history.ScheduleEventID(1),
		),
		history.NewHistoryEvent(
			3,
			time.Now(),
			history.EventType_ActivityCompleted,
			&history.ActivityCompletedAttributes{
				Result: result,
			},
			history.ScheduleEventID(1),
		),
	}
}

func startWorkflowTask(instanceID string, workflow any, workflowArgs ...any) *backend.WorkflowTask {
	inputs, err := args.ArgsToInputs(converter.DefaultConverter, workflowArgs...)
	if err != nil {
		panic(err)
	}

	return &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: core.NewWorkflowInstance(instanceID, "executionID"),
		NewEvents: []*history.Event{
			history.NewPendingEvent(
				time.Now(),
				history.EventType_WorkflowExecutionStarted,
				&history.ExecutionStartedAttributes{
					Name:   fn.Name(workflow),
					Inputs: inputs,
				},
			),
		},
	}
}

func continueTask(instanceID string, newEvents []*history.Event, lastSequenceID int64) *backend.WorkflowTask {
	return &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: core.NewWorkflowInstance(instanceID, "executionID"),
		NewEvents:        newEvents,
		LastSequenceID:   lastSequenceID,
	}
}

func pendingCommands(commands []command.Command) []command.Command {
	var pending []command.Command
	for _, c := range commands {
		if c.State() == command.CommandState_Pending {
			pending = append(pending, c)
		}
	}
	return pending
}
