package sync

// Channel is an unbounded FIFO queue shared between coroutines. Send never blocks;
// Receive parks the calling coroutine until a value is available.
type Channel[T any] interface {
	Send(v T)

	// Receive blocks until a value is available. It returns false once the channel
	// is closed and drained, or when the context is canceled.
	Receive(ctx Context) (v T, ok bool)

	ReceiveNonBlocking() (v T, ok bool)

	Len() int

	Close()
}

func NewChannel[T any]() Channel[T] {
	return &channel[T]{
		c: make([]T, 0),
	}
}

type channel[T any] struct {
	c      []T
	closed bool
}

func (c *channel[T]) Send(v T) {
	if c.closed {
		panic("channel closed")
	}

	c.c = append(c.c, v)
}

func (c *channel[T]) Receive(ctx Context) (T, bool) {
	cr := getCoState(ctx)

	for {
		if v, ok := c.ReceiveNonBlocking(); ok {
			cr.MadeProgress()
			return v, true
		}

		if c.closed || ctx.Err() != nil {
			cr.MadeProgress()

			var zero T
			return zero, false
		}

		cr.Yield()
	}
}

func (c *channel[T]) ReceiveNonBlocking() (T, bool) {
	if len(c.c) > 0 {
		v := c.c[0]

		var zero T
		c.c[0] = zero
		c.c = c.c[1:]

		return v, true
	}

	var zero T
	return zero, false
}

func (c *channel[T]) Len() int {
	return len(c.c)
}

func (c *channel[T]) Close() {
	c.closed = true
}
