package test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/activity"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/stretchr/testify/require"
)

type CustomError struct {
	msg string
}

func (e *CustomError) Error() string {
	return e.msg
}

var errRejected = errors.New("rejected")

var fastRetries = workflow.RetryOptions{
	MaxAttempts:        3,
	FirstRetryInterval: time.Millisecond,
	MaxRetryInterval:   time.Millisecond * 5,
	BackoffCoefficient: 2,
}

var e2eActivityTests = []backendTest{
	{
		name: "Activity_Result",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			a := func(_ context.Context, amount int) (int, error) {
				return amount * 2, nil
			}

			wf := func(ctx workflow.Context, amount int) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a, amount).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[int](t, ctx, c, wf, 21)

			require.NoError(t, err)
			require.Equal(t, 42, output)
		},
	},
	{
		name: "Activity_Panic",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			a := func(context.Context) error {
				panic("activity panic")
			}

			wf := func(ctx workflow.Context) (bool, error) {
				_, err := workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					RetryOptions: workflow.RetryOptions{
						MaxAttempts: 1,
					},
				}, a).Get(ctx)

				var perr *workflow.PanicError
				return errors.As(err, &perr), nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[bool](t, ctx, c, wf)

			require.True(t, output, "error should be PanicError")
			require.NoError(t, err)
		},
	},
	{
		name: "Activity_CustomError",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			a := func(context.Context) error {
				return &CustomError{msg: "custom error"}
			}

			wf := func(ctx workflow.Context) (bool, error) {
				_, err := workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					RetryOptions: workflow.RetryOptions{
						MaxAttempts: 1,
					},
				}, a).Get(ctx)

				var werr *workflow.Error
				if errors.As(err, &werr) {
					return werr.Type == "CustomError" && werr.Error() == "custom error", nil
				}

				return false, nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[bool](t, ctx, c, wf)

			require.True(t, output, "error should be CustomError")
			require.NoError(t, err)
		},
	},
	{
		name: "Activity_RetriesTransientFailures",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			var calls atomic.Int32

			a := func(ctx context.Context) (int, error) {
				calls.Add(1)

				if activity.Attempt(ctx) < 3 {
					return 0, errors.New("temporarily unavailable")
				}

				return activity.Attempt(ctx), nil
			}

			wf := func(ctx workflow.Context) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					StartToCloseTimeout: time.Second,
					RetryOptions:        fastRetries,
				}, a).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[int](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, 3, output)
			require.Equal(t, int32(3), calls.Load())
		},
	},
	{
		name: "Activity_PermanentErrorIsNotRetried",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			var calls atomic.Int32

			a := func(ctx context.Context) (int, error) {
				calls.Add(1)
				return 0, workflow.NewPermanentError(errRejected)
			}

			wf := func(ctx workflow.Context) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					RetryOptions: fastRetries,
				}, a).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			_, err := runWorkflowWithResult[int](t, ctx, c, wf)

			require.ErrorContains(t, err, "rejected")
			require.Equal(t, int32(1), calls.Load())
		},
	},
	{
		name: "Activity_StartToCloseTimeoutFailsAttempt",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			var calls atomic.Int32

			a := func(ctx context.Context) (int, error) {
				calls.Add(1)
				<-ctx.Done()
				return 0, ctx.Err()
			}

			wf := func(ctx workflow.Context) (bool, error) {
				_, err := workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					StartToCloseTimeout: time.Millisecond * 50,
					RetryOptions: workflow.RetryOptions{
						MaxAttempts:        2,
						FirstRetryInterval: time.Millisecond,
					},
				}, a).Get(ctx)

				return workflow.HasErrorKind(err, workflowerrors.KindActivityTimeout), nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			timedOut, err := runWorkflowWithResult[bool](t, ctx, c, wf)

			require.NoError(t, err)
			require.True(t, timedOut)
			require.Equal(t, int32(2), calls.Load())
		},
	},
	{
		name: "Activity_ScheduleToCloseTimeoutEndsRetries",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b TestBackend) {
			a := func(ctx context.Context) (int, error) {
				return 0, errors.New("temporarily unavailable")
			}

			wf := func(ctx workflow.Context) (string, error) {
				_, err := workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					StartToCloseTimeout:    time.Millisecond * 50,
					ScheduleToCloseTimeout: time.Millisecond * 200,
					RetryOptions: workflow.RetryOptions{
						MaxAttempts:        workflow.Unlimited,
						FirstRetryInterval: time.Millisecond * 10,
						MaxRetryInterval:   time.Millisecond * 20,
					},
				}, a).Get(ctx)

				if !workflow.HasErrorKind(err, workflowerrors.KindActivityTimeout) {
					return "", err
				}

				return err.Error(), nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			msg, err := runWorkflowWithResult[string](t, ctx, c, wf)

			require.NoError(t, err)
			require.Contains(t, msg, "schedule-to-close")
			require.Contains(t, msg, "temporarily unavailable")
		},
	},
}
