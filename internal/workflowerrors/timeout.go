package workflowerrors

import (
	"fmt"
	"time"
)

const KindActivityTimeout = "ActivityTimeout"

// TimeoutError is returned when an activity exceeds one of its timeouts. Exceeding the
// start-to-close timeout only fails the attempt, exceeding schedule-to-close ends the activity.
type TimeoutError struct {
	Timeout         time.Duration
	ScheduleToClose bool

	// LastErr is the error of the last attempt when the schedule-to-close budget ran out
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.ScheduleToClose {
		if e.LastErr != nil {
			return fmt.Sprintf("activity exceeded schedule-to-close timeout of %v: %v", e.Timeout, e.LastErr)
		}

		return fmt.Sprintf("activity exceeded schedule-to-close timeout of %v", e.Timeout)
	}

	return fmt.Sprintf("activity attempt exceeded start-to-close timeout of %v", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

func (e *TimeoutError) Kind() string {
	return KindActivityTimeout
}

func (e *TimeoutError) Permanent() bool {
	return e.ScheduleToClose
}
