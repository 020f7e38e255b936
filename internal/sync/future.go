package sync

type Future[T any] interface {
	// Get returns the value if set, blocks otherwise
	Get(ctx Context) (T, error)
}

type SettableFuture[T any] interface {
	Future[T]

	// Set stores the value and unblocks any waiting consumers
	Set(v T, err error)

	// Ready returns true if the future has been set
	Ready() bool
}

func NewFuture[T any]() SettableFuture[T] {
	return &future[T]{}
}

type future[T any] struct {
	hasValue bool
	v        T
	err      error
}

func (f *future[T]) Set(v T, err error) {
	if f.hasValue {
		panic("future already set")
	}

	f.v = v
	f.err = err
	f.hasValue = true
}

func (f *future[T]) Get(ctx Context) (T, error) {
	for {
		cr := getCoState(ctx)

		if f.hasValue {
			cr.MadeProgress()

			return f.v, f.err
		}

		cr.Yield()
	}
}

func (f *future[T]) Ready() bool {
	return f.hasValue
}
