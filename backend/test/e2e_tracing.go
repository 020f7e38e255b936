package test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
)

var e2eTracingTests = []backendTest{
	{
		name: "Tracing/WorkflowsHaveSpans",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			wf := func(ctx workflow.Context) error {
				return nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)
			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*5)
			require.NoError(t, err)

			spans := spanExporter(ctx).GetSpans().Snapshots()

			createWorkflowSpan := findSpan(spans, func(span trace.ReadOnlySpan) bool {
				return strings.Contains(span.Name(), "CreateWorkflowInstance")
			})
			require.NotNil(t, createWorkflowSpan)
			require.Contains(t, createWorkflowSpan.Attributes(), attribute.String(tracing.WorkflowInstanceID, instance.InstanceID))

			taskSpan := findSpan(spans, func(span trace.ReadOnlySpan) bool {
				return span.Name() == "WorkflowTaskExecution"
			})
			require.NotNil(t, taskSpan)
			require.Contains(t, taskSpan.Attributes(), attribute.String(tracing.WorkflowExecutionID, instance.ExecutionID))
		},
	},
	{
		name: "Tracing/ActivitiesHaveSpans",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			a := func(context.Context) (int, error) {
				return 42, nil
			}
			wf := func(ctx workflow.Context) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			instance := runWorkflow(t, ctx, c, wf)
			_, err := client.GetWorkflowResult[int](ctx, c, instance, time.Second*5)
			require.NoError(t, err)

			spans := spanExporter(ctx).GetSpans().Snapshots()

			activitySpan := findSpan(spans, func(span trace.ReadOnlySpan) bool {
				return span.Name() == "ActivityTaskExecution"
			})
			require.NotNil(t, activitySpan)
			require.Contains(t, activitySpan.Attributes(), attribute.String(tracing.WorkflowInstanceID, instance.InstanceID))
		},
	},
}

func findSpan(spans []trace.ReadOnlySpan, f func(trace.ReadOnlySpan) bool) trace.ReadOnlySpan {
	for _, span := range spans {
		if f(span) {
			return span
		}
	}

	return nil
}
