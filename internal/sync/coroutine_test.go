package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/stretchr/testify/require"
)

func Test_Coroutine_CanAccessState(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		s := getCoState(ctx)
		require.NotNil(t, s)

		return nil
	})

	c.Execute()
	require.True(t, c.Finished())
}

func Test_Coroutine_MarkedAsDone(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		return nil
	})

	c.Execute()

	require.True(t, c.Finished())
}

func Test_Coroutine_MarkedAsBlocked(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		s := getCoState(ctx)

		s.Yield()

		require.FailNow(t, "should not reach this")

		return nil
	})
	defer c.Exit()

	c.Execute()

	require.True(t, c.Blocked())
	require.False(t, c.Finished())
}

func Test_Coroutine_Continue(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		s := getCoState(ctx)
		s.Yield()

		return nil
	})

	c.Execute()

	require.True(t, c.Blocked())
	require.False(t, c.Finished())

	c.Execute()

	require.False(t, c.Blocked())
	require.True(t, c.Finished())
}

func Test_Coroutine_Continue_WhenFinished(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		return nil
	})

	c.Execute()
	require.True(t, c.Finished())

	c.Execute()
	require.True(t, c.Finished())
}

func Test_Coroutine_Error(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		return errors.New("test error")
	})

	c.Execute()

	require.True(t, c.Finished())
	require.EqualError(t, c.Error(), "test error")
}

func Test_Coroutine_PanicBecomesError(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		panic("boom")
	})

	c.Execute()

	require.True(t, c.Finished())

	var pe *workflowerrors.PanicError
	require.ErrorAs(t, c.Error(), &pe)
	require.Equal(t, "panic: boom", pe.Error())
	require.NotEmpty(t, pe.Stack())
}

func Test_Coroutine_Exit(t *testing.T) {
	reached := false

	c := NewCoroutine(Background(), func(ctx Context) error {
		getCoState(ctx).Yield()

		reached = true

		return nil
	})

	c.Execute()
	require.True(t, c.Blocked())

	c.Exit()

	require.True(t, c.Finished())
	require.False(t, reached)
}

func Test_Coroutine_ExitBeforeStart(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		require.FailNow(t, "should not run")
		return nil
	})

	c.Exit()

	require.True(t, c.Finished())
}

func Test_Coroutine_DeadlockDetection(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	c.(*coState).deadlockDetection = 10 * time.Millisecond

	require.PanicsWithValue(t, "coroutine timed out", func() {
		c.Execute()
	})

	// Let the coroutine finish so it does not leak
	require.Eventually(t, c.Finished, time.Second, 10*time.Millisecond)
}
