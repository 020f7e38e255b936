package test

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/stretchr/testify/require"
)

var e2eSignalTests = []backendTest{
	{
		name: "Signal_ReceivedByChannel",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			wf := func(ctx workflow.Context) (string, error) {
				v, ok := workflow.NewSignalChannel[string](ctx, "task-completed").Receive(ctx)
				if !ok {
					return "", nil
				}

				return v, nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			require.Eventually(t, func() bool {
				return c.SignalWorkflow(ctx, instance.InstanceID, "task-completed", "T1") == nil
			}, time.Second*5, time.Millisecond*10)

			output, err := client.GetWorkflowResult[string](ctx, c, instance, time.Second*10)
			require.NoError(t, err)
			require.Equal(t, "T1", output)
		},
	},
	{
		name: "Signal_AwaitPredicate",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			wf := func(ctx workflow.Context, want string) (int, error) {
				received := 0
				done := false

				workflow.HandleSignal(ctx, "task-completed", func(taskID string) {
					received++
					if taskID == want {
						done = true
					}
				})

				if err := workflow.Await(ctx, func() bool { return done }); err != nil {
					return 0, err
				}

				return received, nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf, "T2")

			// Signals recorded before the handler is registered are not lost
			require.NoError(t, c.SignalWorkflow(ctx, instance.InstanceID, "task-completed", "T0"))
			require.NoError(t, c.SignalWorkflow(ctx, instance.InstanceID, "task-completed", "T1"))
			require.NoError(t, c.SignalWorkflow(ctx, instance.InstanceID, "task-completed", "T2"))

			output, err := client.GetWorkflowResult[int](ctx, c, instance, time.Second*10)
			require.NoError(t, err)
			require.Equal(t, 3, output)
		},
	},
	{
		name: "Signal_InvalidPayloadIsDropped",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			wf := func(ctx workflow.Context) (int, error) {
				v, _ := workflow.NewSignalChannel[int](ctx, "amount").Receive(ctx)
				return v, nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			require.NoError(t, c.SignalWorkflow(ctx, instance.InstanceID, "amount", "not a number"))
			require.NoError(t, c.SignalWorkflow(ctx, instance.InstanceID, "amount", 42))

			output, err := client.GetWorkflowResult[int](ctx, c, instance, time.Second*10)
			require.NoError(t, err)
			require.Equal(t, 42, output)
		},
	},
	{
		name: "Cancel_WaitingWorkflow",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			wf := func(ctx workflow.Context) error {
				return workflow.Await(ctx, func() bool { return false })
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			require.NoError(t, c.CancelWorkflowInstance(ctx, instance))

			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*10)
			require.ErrorIs(t, err, client.ErrWorkflowCanceled)

			state, err := c.GetWorkflowInstanceState(ctx, instance)
			require.NoError(t, err)
			require.Equal(t, core.WorkflowInstanceStateFinished, state)

			// Canceling again has no effect
			require.NoError(t, c.CancelWorkflowInstance(ctx, instance))
		},
	},
}
