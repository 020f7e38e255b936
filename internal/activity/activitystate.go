package activity

import (
	"context"
	"log/slog"

	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/log"
)

type ActivityState struct {
	ActivityID string
	Name       string
	Instance   *core.WorkflowInstance

	// Attempt is the 1-based number of the current attempt
	Attempt int

	Logger *slog.Logger
}

func NewActivityState(activityID, name string, instance *core.WorkflowInstance, attempt int, logger *slog.Logger) *ActivityState {
	return &ActivityState{
		ActivityID: activityID,
		Name:       name,
		Instance:   instance,
		Attempt:    attempt,
		Logger: logger.With(
			log.ActivityIDKey, activityID,
			log.ActivityNameKey, name,
			log.InstanceIDKey, instance.InstanceID,
			log.ExecutionIDKey, instance.ExecutionID,
			log.AttemptKey, attempt,
		),
	}
}

type key int

var activityCtxKey key

func WithActivityState(ctx context.Context, as *ActivityState) context.Context {
	return context.WithValue(ctx, activityCtxKey, as)
}

// GetActivityState returns the state of the activity executed with ctx, or nil outside of an activity
func GetActivityState(ctx context.Context) *ActivityState {
	as, _ := ctx.Value(activityCtxKey).(*ActivityState)
	return as
}
