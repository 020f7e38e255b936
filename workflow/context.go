package workflow

import "github.com/cschleiden/loanflow/internal/sync"

type CancelFunc = sync.CancelFunc

// Canceled is returned by blocking workflow operations once the workflow has been canceled
var Canceled = sync.Canceled

// WithCancel returns a copy of parent that is canceled when the returned cancel function is
// called or when the parent is canceled.
func WithCancel(parent Context) (ctx Context, cancel CancelFunc) {
	return sync.WithCancel(parent)
}
