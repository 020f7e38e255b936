package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FutureYields(t *testing.T) {
	f := NewFuture[int]()

	c := NewCoroutine(Background(), func(ctx Context) error {
		_, err := f.Get(ctx)
		return err
	})
	defer c.Exit()

	c.Execute()

	require.False(t, c.Finished())
	require.True(t, c.Blocked())
}

func Test_FutureSetPanicsWhenSetTwice(t *testing.T) {
	f := NewFuture[int]()

	f.Set(42, nil)

	require.Panics(t, func() {
		f.Set(42, nil)
	})
}

func Test_FutureSetUnblocks(t *testing.T) {
	f := NewFuture[int]()

	var v int

	c := NewCoroutine(Background(), func(ctx Context) error {
		var err error
		v, err = f.Get(ctx)
		return err
	})

	c.Execute()

	require.False(t, c.Finished())
	require.True(t, c.Blocked())

	c.Execute()
	require.False(t, c.Progress())

	f.Set(42, nil)

	c.Execute()

	require.True(t, c.Progress())
	require.True(t, c.Finished())
	require.Equal(t, 42, v)
}

func Test_FutureError(t *testing.T) {
	f := NewFuture[int]()
	f.Set(0, errors.New("test"))

	c := NewCoroutine(Background(), func(ctx Context) error {
		_, err := f.Get(ctx)
		return err
	})

	c.Execute()

	require.True(t, c.Finished())
	require.EqualError(t, c.Error(), "test")
	require.True(t, f.Ready())
}
