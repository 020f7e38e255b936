package workflow

import "github.com/cschleiden/loanflow/internal/sync"

// Await suspends the workflow until cond returns true. cond is evaluated immediately and
// then every time the workflow is resumed, e.g. after a signal or an activity result was
// applied. Returns Canceled if the workflow is canceled first.
func Await(ctx Context, cond func() bool) error {
	return sync.Await(ctx, cond)
}
