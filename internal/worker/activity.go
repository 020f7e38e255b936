package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/internal/activity"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	im "github.com/cschleiden/loanflow/internal/metrics"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/registry"
)

func NewActivityWorker(
	b backend.Backend,
	registry *registry.Registry,
	clock clock.Clock,
	options WorkerOptions,
) *Worker[backend.ActivityTask, history.Event] {
	opts := b.Options()

	ex := activity.NewExecutor(opts.Logger, b.Tracer(), opts.Converter, registry, clock)

	tw := &ActivityTaskWorker{
		backend:  b,
		activity: ex,
		logger:   opts.Logger,
		clock:    clock,
	}

	return NewWorker(opts.Logger, tw, &options)
}

type ActivityTaskWorker struct {
	backend  backend.Backend
	activity *activity.Executor
	logger   *slog.Logger
	clock    clock.Clock
}

func (atw *ActivityTaskWorker) Start(ctx context.Context) error {
	return nil
}

func (atw *ActivityTaskWorker) Get(ctx context.Context) (*backend.ActivityTask, error) {
	return atw.backend.GetActivityTask(ctx)
}

func (atw *ActivityTaskWorker) Extend(ctx context.Context, task *backend.ActivityTask) error {
	return atw.backend.ExtendActivityTask(ctx, task)
}

func (atw *ActivityTaskWorker) Complete(ctx context.Context, event *history.Event, task *backend.ActivityTask) error {
	if err := atw.backend.CompleteActivityTask(ctx, task, event); err != nil {
		return fmt.Errorf("completing activity task: %w", err)
	}

	return nil
}

// Execute runs the activity with all of its attempts and returns the single event recording its
// outcome.
func (atw *ActivityTaskWorker) Execute(ctx context.Context, task *backend.ActivityTask) (*history.Event, error) {
	a := task.Event.Attributes.(*history.ActivityScheduledAttributes)
	ametrics := atw.backend.Metrics().WithTags(metrics.Tags{metrickeys.ActivityName: a.Name})

	// Record how long this task was in the queue
	scheduledAt := task.Event.Timestamp
	timeInQueue := atw.clock.Since(scheduledAt)
	ametrics.Distribution(metrickeys.ActivityTaskDelay, metrics.Tags{}, float64(timeInQueue/time.Millisecond))

	timer := im.NewTimer(ametrics, metrickeys.ActivityTaskProcessed, metrics.Tags{})
	defer timer.Stop()

	result, attempts, err := atw.activity.ExecuteActivity(ctx, task)

	// Lock lost or worker shutting down, the outcome is not recorded and another worker retries
	// the activity
	if ctx.Err() != nil {
		return nil, fmt.Errorf("activity %s aborted: %w", a.Name, ctx.Err())
	}

	ametrics.Distribution(metrickeys.ActivityTaskAttempts, metrics.Tags{}, float64(attempts))

	if err != nil {
		atw.logger.WarnContext(ctx, "Activity failed",
			log.ActivityNameKey, a.Name,
			log.InstanceIDKey, task.WorkflowInstance.InstanceID,
			log.AttemptKey, attempts,
			"error", err)

		we := workflowerrors.FromError(err)
		we.Activity = a.Name

		return history.NewPendingEvent(
			atw.clock.Now(),
			history.EventType_ActivityFailed,
			&history.ActivityFailedAttributes{
				Error:    we,
				Attempts: attempts,
			},
			history.ScheduleEventID(task.Event.ScheduleEventID),
		), nil
	}

	return history.NewPendingEvent(
		atw.clock.Now(),
		history.EventType_ActivityCompleted,
		&history.ActivityCompletedAttributes{
			Result:   result,
			Attempts: attempts,
		},
		history.ScheduleEventID(task.Event.ScheduleEventID),
	), nil
}
