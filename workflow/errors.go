package workflow

import "github.com/cschleiden/loanflow/internal/workflowerrors"

type (
	Error      = workflowerrors.Error
	PanicError = workflowerrors.PanicError
)

// NewError wraps the given error into a workflow error which will be automatically retried
func NewError(err error) error {
	return workflowerrors.FromError(err)
}

// NewPermanentError wraps the given error into a workflow error which will not be automatically retried
func NewPermanentError(err error) error {
	return workflowerrors.NewPermanentError(err)
}

// CanRetry returns true if the given error is retryable
func CanRetry(err error) bool {
	return workflowerrors.CanRetry(err)
}

// HasErrorKind returns true if err, or any error it wraps, carries the given kind. Kinds survive
// persistence, so this also works for errors returned from activities.
func HasErrorKind(err error, kind string) bool {
	return workflowerrors.HasKind(err, kind)
}
