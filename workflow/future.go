package workflow

import "github.com/cschleiden/loanflow/internal/sync"

type Future[T any] interface {
	// Get returns the value if set, blocks otherwise
	Get(ctx Context) (T, error)
}

var _ Future[int] = (sync.Future[int])(nil)
