package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Policy used for activities scheduled without one
var defaultRetryPolicy = history.RetryPolicy{
	MaxAttempts:        1,
	FirstRetryInterval: time.Second,
	BackoffCoefficient: 2,
	MaxRetryInterval:   time.Minute,
}

type Executor struct {
	logger *slog.Logger
	tracer trace.Tracer
	cv     converter.Converter
	r      *registry.Registry
	clock  clock.Clock
}

func NewExecutor(logger *slog.Logger, tracer trace.Tracer, cv converter.Converter, r *registry.Registry, clock clock.Clock) *Executor {
	return &Executor{
		logger: logger,
		tracer: tracer,
		cv:     cv,
		r:      r,
		clock:  clock,
	}
}

// ExecuteActivity runs all attempts of the activity task and returns the final outcome with the
// number of attempts made. If ctx is canceled before the activity finished, ctx's error is
// returned and no outcome must be recorded.
func (e *Executor) ExecuteActivity(ctx context.Context, task *backend.ActivityTask) (payload.Payload, int, error) {
	a := task.Event.Attributes.(*history.ActivityScheduledAttributes)

	activity, err := e.r.GetActivity(a.Name)
	if err != nil {
		return nil, 0, err
	}

	activityFn := reflect.ValueOf(activity)
	if activityFn.Type().Kind() != reflect.Func {
		return nil, 0, workflowerrors.NewPermanentError(errors.New("activity not a function"))
	}

	policy := a.RetryPolicy
	if policy == nil {
		policy = &defaultRetryPolicy
	}

	scheduleCtx := ctx
	if a.ScheduleToCloseTimeout > 0 {
		var cancel context.CancelFunc
		scheduleCtx, cancel = e.clock.WithDeadline(ctx, task.Event.Timestamp.Add(a.ScheduleToCloseTimeout))
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.FirstRetryInterval
	b.Multiplier = policy.BackoffCoefficient
	b.MaxInterval = policy.MaxRetryInterval
	b.MaxElapsedTime = 0
	b.Clock = e.clock

	var bo backoff.BackOff = b
	if policy.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(policy.MaxAttempts-1))
	}
	bo = backoff.WithContext(bo, scheduleCtx)

	logger := e.logger.With(
		log.ActivityIDKey, task.Event.ID,
		log.ActivityNameKey, a.Name,
		log.InstanceIDKey, task.WorkflowInstance.InstanceID,
	)

	var (
		attempt int
		lastErr error
	)

	result, err := backoff.RetryNotifyWithData(func() (payload.Payload, error) {
		attempt++

		r, err := e.executeAttempt(ctx, scheduleCtx, task, a, activityFn, attempt)
		if err == nil {
			return r, nil
		}

		if te, ok := err.(*workflowerrors.TimeoutError); ok && te.ScheduleToClose && te.LastErr == nil {
			te.LastErr = lastErr
		}

		lastErr = err

		if !workflowerrors.CanRetry(err) || scheduleCtx.Err() != nil {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}, bo, func(err error, next time.Duration) {
		logger.Warn("Activity attempt failed, retrying",
			log.AttemptKey, attempt,
			"next", next,
			"error", err)
	})

	if err == nil {
		return result, attempt, nil
	}

	// Canceled by the caller, the activity is not finished
	if ctx.Err() != nil {
		return nil, attempt, ctx.Err()
	}

	// Schedule-to-close budget exhausted
	if scheduleCtx.Err() != nil && !isTimeout(lastErr, true) {
		return nil, attempt, &workflowerrors.TimeoutError{
			Timeout:         a.ScheduleToCloseTimeout,
			ScheduleToClose: true,
			LastErr:         lastErr,
		}
	}

	return nil, attempt, err
}

type attemptResult struct {
	values []reflect.Value
	err    error
}

func (e *Executor) executeAttempt(
	ctx, scheduleCtx context.Context,
	task *backend.ActivityTask,
	a *history.ActivityScheduledAttributes,
	activityFn reflect.Value,
	attempt int,
) (payload.Payload, error) {
	args, addContext, err := args.InputsToArgs(e.cv, activityFn, a.Inputs)
	if err != nil {
		return nil, workflowerrors.NewPermanentError(fmt.Errorf("converting activity inputs: %w", err))
	}

	attemptCtx := scheduleCtx
	if a.StartToCloseTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = e.clock.WithTimeout(scheduleCtx, a.StartToCloseTimeout)
		defer cancel()
	}

	as := NewActivityState(task.Event.ID, a.Name, task.WorkflowInstance, attempt, e.logger)
	attemptCtx = WithActivityState(attemptCtx, as)

	attemptCtx, span := e.tracer.Start(attemptCtx, "ActivityTaskExecution", trace.WithAttributes(
		attribute.String(tracing.ActivityName, a.Name),
		attribute.String(tracing.WorkflowInstanceID, task.WorkflowInstance.InstanceID),
		attribute.String(tracing.ActivityTaskID, task.ID),
		attribute.Int(tracing.Attempts, attempt),
	))
	defer span.End()

	if addContext {
		args[0] = reflect.ValueOf(attemptCtx)
	}

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: workflowerrors.NewPanicError(fmt.Sprintf("panic in activity %s: %v", a.Name, r))}
			}
		}()

		done <- attemptResult{values: activityFn.Call(args)}
	}()

	var r attemptResult
	select {
	case r = <-done:
	case <-attemptCtx.Done():
		select {
		case r = <-done:
		default:
		}

		if r.values != nil || r.err != nil {
			break
		}

		// The activity keeps running until it observes the canceled context, its result is dropped
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case scheduleCtx.Err() != nil:
			return nil, tracing.WithSpanError(span, &workflowerrors.TimeoutError{Timeout: a.ScheduleToCloseTimeout, ScheduleToClose: true})
		default:
			return nil, tracing.WithSpanError(span, &workflowerrors.TimeoutError{Timeout: a.StartToCloseTimeout})
		}
	}

	if r.err != nil {
		return nil, tracing.WithSpanError(span, r.err)
	}

	result, err := e.convertResult(r.values)
	return result, tracing.WithSpanError(span, err)
}

func (e *Executor) convertResult(r []reflect.Value) (payload.Payload, error) {
	if len(r) < 1 || len(r) > 2 {
		return nil, workflowerrors.NewPermanentError(errors.New("activity has to return either (error) or (<result>, error)"))
	}

	var result payload.Payload

	if len(r) > 1 {
		var err error
		result, err = e.cv.To(r[0].Interface())
		if err != nil {
			return nil, workflowerrors.NewPermanentError(fmt.Errorf("converting activity result: %w", err))
		}
	}

	errResult := r[len(r)-1]
	if errResult.IsNil() {
		return result, nil
	}

	errInterface, ok := errResult.Interface().(error)
	if !ok {
		return nil, fmt.Errorf("activity error result does not satisfy error interface (%T): %v", errResult, errResult)
	}

	return result, errInterface
}

func isTimeout(err error, scheduleToClose bool) bool {
	var te *workflowerrors.TimeoutError
	return errors.As(err, &te) && te.ScheduleToClose == scheduleToClose
}
