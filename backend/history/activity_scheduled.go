package history

import (
	"time"

	"github.com/cschleiden/loanflow/backend/payload"
)

type ActivityScheduledAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`

	// StartToCloseTimeout bounds a single attempt of the activity.
	StartToCloseTimeout time.Duration `json:"stc,omitempty"`

	// ScheduleToCloseTimeout bounds all attempts of the activity, measured from the time it was scheduled.
	ScheduleToCloseTimeout time.Duration `json:"schtc,omitempty"`

	RetryPolicy *RetryPolicy `json:"retry,omitempty"`
}

type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, 0 means unlimited
	MaxAttempts int `json:"max_attempts,omitempty"`

	FirstRetryInterval time.Duration `json:"first_retry_interval,omitempty"`

	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty"`

	MaxRetryInterval time.Duration `json:"max_retry_interval,omitempty"`
}
