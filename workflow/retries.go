package workflow

import (
	"time"

	"github.com/cschleiden/loanflow/backend/history"
)

// Unlimited can be used as MaxAttempts to retry until the schedule-to-close timeout is reached
const Unlimited = 0

type RetryOptions struct {
	// Maximum number of attempts, including the first one. 0 retries without limit.
	MaxAttempts int

	// Time to wait before first retry
	FirstRetryInterval time.Duration

	// Maximum delay for any individual retry attempt
	MaxRetryInterval time.Duration

	// Coefficient for calculating the next retry delay
	BackoffCoefficient float64
}

var DefaultRetryOptions = RetryOptions{
	MaxAttempts:        3,
	FirstRetryInterval: time.Second,
	MaxRetryInterval:   time.Minute,
	BackoffCoefficient: 2,
}

func (r RetryOptions) policy() *history.RetryPolicy {
	p := &history.RetryPolicy{
		MaxAttempts:        r.MaxAttempts,
		FirstRetryInterval: r.FirstRetryInterval,
		BackoffCoefficient: r.BackoffCoefficient,
		MaxRetryInterval:   r.MaxRetryInterval,
	}

	if p.FirstRetryInterval <= 0 {
		p.FirstRetryInterval = DefaultRetryOptions.FirstRetryInterval
	}

	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = DefaultRetryOptions.BackoffCoefficient
	}

	if p.MaxRetryInterval <= 0 {
		p.MaxRetryInterval = DefaultRetryOptions.MaxRetryInterval
	}

	return p
}
