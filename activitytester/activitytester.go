// Package activitytester runs activities outside of a worker, e.g. in unit tests.
package activitytester

import (
	"context"
	"log/slog"

	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/activity"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/google/uuid"
)

type Options struct {
	// Name of the activity, reported by activity.Info
	Name string

	// InstanceID of the workflow instance the activity pretends to be scheduled by
	InstanceID string

	// Attempt defaults to 1
	Attempt int

	// Logger defaults to slog.Default
	Logger *slog.Logger
}

// WithActivityTestState returns a context that makes activity.Logger, activity.Attempt, and
// activity.Info behave like during a worker execution.
func WithActivityTestState(ctx context.Context, options Options) context.Context {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Attempt <= 0 {
		options.Attempt = 1
	}

	instance := core.NewWorkflowInstance(options.InstanceID, uuid.NewString())
	activityID := uuid.NewString()

	logger := options.Logger.With(
		log.ActivityIDKey, activityID,
		log.ActivityNameKey, options.Name,
		log.InstanceIDKey, options.InstanceID,
		log.AttemptKey, options.Attempt,
	)

	return activity.WithActivityState(ctx, activity.NewActivityState(activityID, options.Name, instance, options.Attempt, logger))
}
