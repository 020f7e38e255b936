package test

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/registry"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type backendTest struct {
	name string
	f    func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend)
}

type exporterKey struct{}

// spanExporter returns the exporter recording all spans of the current test
func spanExporter(ctx context.Context) *tracetest.InMemoryExporter {
	return ctx.Value(exporterKey{}).(*tracetest.InMemoryExporter)
}

func EndToEndBackendTest(t *testing.T, setup Setup, teardown Teardown) {
	tests := []backendTest{
		{
			name: "SimpleWorkflow",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context, msg string) (string, error) {
					return msg + " world", nil
				}
				register(t, ctx, w, []any{wf}, nil)

				output, err := runWorkflowWithResult[string](t, ctx, c, wf, "hello")

				require.Equal(t, "hello world", output)
				require.NoError(t, err)
			},
		},
		{
			name: "UnregisteredWorkflow",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context, msg string) (string, error) {
					return msg + " world", nil
				}
				register(t, ctx, w, nil, nil)

				output, err := runWorkflowWithResult[string](t, ctx, c, wf, "hello")

				require.Zero(t, output)
				require.ErrorContains(t, err, "not found")
			},
		},
		{
			name: "WorkflowArgumentMismatch",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context, p1 int) (int, error) {
					return 42, nil
				}
				require.NoError(t, w.RegisterWorkflow(wf, registry.WithName("NeedsArgument")))
				register(t, ctx, w, nil, nil)

				// Start by name to bypass the client side argument check
				instance, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
					InstanceID: uuid.NewString(),
				}, "NeedsArgument")
				require.NoError(t, err)

				output, err := client.GetWorkflowResult[int](ctx, c, instance, time.Second*10)

				require.Zero(t, output)
				require.ErrorContains(t, err, "converting workflow inputs: mismatched argument count: expected 1, got 0")
			},
		},
		{
			name: "WorkflowError",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context) (int, error) {
					return 0, workflow.NewPermanentError(errRejected)
				}
				register(t, ctx, w, []any{wf}, nil)

				_, err := runWorkflowWithResult[int](t, ctx, c, wf)

				var we *workflow.Error
				require.ErrorAs(t, err, &we)
				require.Equal(t, errRejected.Error(), we.Message)
			},
		},
		{
			name: "WorkflowPanic",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context) (int, error) {
					panic("boom")
				}
				register(t, ctx, w, []any{wf}, nil)

				_, err := runWorkflowWithResult[int](t, ctx, c, wf)

				var pe *workflow.PanicError
				require.ErrorAs(t, err, &pe)
				require.ErrorContains(t, err, "boom")
			},
		},
		{
			name: "UnregisteredActivity",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				a := func(context.Context) (int, error) { return 42, nil }
				wf := func(ctx workflow.Context) (int, error) {
					return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a).Get(ctx)
				}
				register(t, ctx, w, []any{wf}, nil)

				output, err := runWorkflowWithResult[int](t, ctx, c, wf)

				require.Zero(t, output)
				require.ErrorContains(t, err, "not found")
			},
		},
		{
			name: "ActivityArgumentMismatch",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				a := func(context.Context, int, int) error { return nil }
				wf := func(ctx workflow.Context) (int, error) {
					return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a, 42).Get(ctx)
				}
				register(t, ctx, w, []any{wf}, []any{a})

				output, err := runWorkflowWithResult[int](t, ctx, c, wf)

				require.Zero(t, output)
				require.ErrorContains(t, err, "mismatched argument count: expected 2, got 1")
			},
		},
		{
			name: "CreateWorkflowInstance_DuplicateInstanceID",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
				wf := func(ctx workflow.Context) error {
					return workflow.Await(ctx, func() bool { return false })
				}
				register(t, ctx, w, []any{wf}, nil)

				instanceID := uuid.NewString()
				_, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{InstanceID: instanceID}, wf)
				require.NoError(t, err)

				_, err = c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{InstanceID: instanceID}, wf)
				require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
			},
		},
	}

	tests = append(tests, e2eActivityTests...)
	tests = append(tests, e2eSignalTests...)
	tests = append(tests, e2eStatsTests...)
	tests = append(tests, e2eTracingTests...)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := tracetest.NewInMemoryExporter()
			provider := trace.NewTracerProvider(trace.WithSyncer(exporter))

			b := setup(backend.WithTracerProvider(provider))

			ctx := context.WithValue(context.Background(), exporterKey{}, exporter)
			ctx, cancel := context.WithCancel(ctx)

			c := client.New(b)
			w := worker.New(b, &testWorkerOptions)

			tt.f(t, ctx, c, w, b)

			cancel()
			if err := w.WaitForCompletion(); err != nil {
				t.Fatalf("worker did not stop in time: %v", err)
			}

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

var testWorkerOptions = func() worker.Options {
	o := worker.DefaultOptions
	o.WorkflowPollingInterval = 10 * time.Millisecond
	o.ActivityPollingInterval = 10 * time.Millisecond
	return o
}()

func register(t *testing.T, ctx context.Context, w *worker.Worker, workflows []any, activities []any) {
	for _, wf := range workflows {
		require.NoError(t, w.RegisterWorkflow(wf))
	}

	for _, a := range activities {
		require.NoError(t, w.RegisterActivity(a))
	}

	err := w.Start(ctx)
	require.NoError(t, err)
}

func runWorkflow(t *testing.T, ctx context.Context, c *client.Client, wf any, inputs ...any) *workflow.Instance {
	instance, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: uuid.NewString(),
	}, wf, inputs...)
	require.NoError(t, err)

	return instance
}

func runWorkflowWithResult[T any](t *testing.T, ctx context.Context, c *client.Client, wf any, inputs ...any) (T, error) {
	instance := runWorkflow(t, ctx, c, wf, inputs...)
	return client.GetWorkflowResult[T](ctx, c, instance, time.Second*10)
}
