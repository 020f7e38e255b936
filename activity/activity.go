package activity

import (
	"context"
	"log/slog"

	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/activity"
)

// Logger returns a logger with the workflow instance, activity, and attempt this activity is
// executed for set as default fields
func Logger(ctx context.Context) *slog.Logger {
	if as := activity.GetActivityState(ctx); as != nil {
		return as.Logger
	}

	return slog.Default()
}

// Attempt returns the 1-based attempt number of the current activity execution, 0 outside of an
// activity.
func Attempt(ctx context.Context) int {
	if as := activity.GetActivityState(ctx); as != nil {
		return as.Attempt
	}

	return 0
}

type ActivityInfo struct {
	ActivityID string
	Name       string
	Instance   *core.WorkflowInstance
	Attempt    int
}

// Info describes the activity executed with ctx. ok is false outside of an activity.
func Info(ctx context.Context) (info ActivityInfo, ok bool) {
	as := activity.GetActivityState(ctx)
	if as == nil {
		return ActivityInfo{}, false
	}

	return ActivityInfo{
		ActivityID: as.ActivityID,
		Name:       as.Name,
		Instance:   as.Instance,
		Attempt:    as.Attempt,
	}, true
}
