package workflow

import (
	"fmt"
	"time"

	a "github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/command"
	"github.com/cschleiden/loanflow/internal/contextvalue"
	"github.com/cschleiden/loanflow/internal/fn"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowstate"
)

type ActivityOptions struct {
	// StartToCloseTimeout bounds a single attempt. An attempt exceeding it fails and may be retried.
	StartToCloseTimeout time.Duration

	// ScheduleToCloseTimeout bounds all attempts, measured from the time the activity was scheduled.
	// Zero means no limit.
	ScheduleToCloseTimeout time.Duration

	RetryOptions RetryOptions
}

var DefaultActivityOptions = ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryOptions:        DefaultRetryOptions,
}

// ExecuteActivity schedules the given activity to be executed. activity is either the activity
// function or its registered name. Retries and timeouts are applied by the activity worker, the
// returned future resolves once with the final outcome.
func ExecuteActivity[TResult any](ctx Context, options ActivityOptions, activity Activity, args ...any) Future[TResult] {
	f := sync.NewFuture[TResult]()

	// New work cannot be started once the workflow has been canceled
	if err := ctx.Err(); err != nil {
		f.Set(*new(TResult), err)
		return f
	}

	var name string
	if n, ok := activity.(string); ok {
		name = n
	} else {
		if err := a.ReturnTypeMatch[TResult](activity); err != nil {
			f.Set(*new(TResult), err)
			return f
		}

		if err := a.ParamsMatch(activity, args...); err != nil {
			f.Set(*new(TResult), err)
			return f
		}

		name = fn.Name(activity)
	}

	cv := contextvalue.Converter(ctx)
	inputs, err := a.ArgsToInputs(cv, args...)
	if err != nil {
		f.Set(*new(TResult), fmt.Errorf("converting activity input: %w", err))
		return f
	}

	wfState := workflowstate.WorkflowState(ctx)
	scheduleEventID := wfState.GetNextScheduleEventID()

	cmd := command.NewScheduleActivityCommand(scheduleEventID, name, inputs, options.commandOptions())
	wfState.AddCommand(cmd)
	wfState.TrackFuture(scheduleEventID, workflowstate.AsDecodingSettable(cv, name, f))

	wfState.Logger().Debug("Scheduling activity", log.ActivityNameKey, name, log.ScheduleEventIDKey, scheduleEventID)

	return f
}

func (o ActivityOptions) commandOptions() command.ActivityOptions {
	stc := o.StartToCloseTimeout
	if stc <= 0 {
		stc = DefaultActivityOptions.StartToCloseTimeout
	}

	return command.ActivityOptions{
		StartToCloseTimeout:    stc,
		ScheduleToCloseTimeout: o.ScheduleToCloseTimeout,
		RetryPolicy:            o.RetryOptions.policy(),
	}
}
