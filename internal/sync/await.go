package sync

// Await parks the calling coroutine until cond returns true. The condition is
// evaluated before parking and again every time the coroutine is resumed. Returns
// the context error if the context is canceled before the condition holds.
func Await(ctx Context, cond func() bool) error {
	cr := getCoState(ctx)

	for {
		if cond() {
			cr.MadeProgress()
			return nil
		}

		if err := ctx.Err(); err != nil {
			cr.MadeProgress()
			return err
		}

		cr.Yield()
	}
}
