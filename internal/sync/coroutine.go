package sync

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

// DeadlockDetection is how long Execute waits for a coroutine to block or finish.
const DeadlockDetection = 40 * time.Second

var ErrCoroutineAlreadyFinished = errors.New("coroutine already finished")

// Coroutine is a goroutine that only runs while the caller of Execute is waiting for it. At most one
// coroutine of a workflow runs at any time, which keeps workflow code deterministic.
type Coroutine interface {
	// Execute runs the coroutine until it blocks again or finishes
	Execute()

	// Yield hands control back to the caller of Execute
	Yield()

	// Exit stops a blocked coroutine
	Exit()

	Blocked() bool
	Finished() bool
	Progress() bool

	Error() error
}

type coStateKey struct{}

type coState struct {
	// signalled by the coroutine whenever it blocks or finishes
	blocking chan bool
	// signalled by Execute to let the coroutine run
	unblock chan bool

	blocked    atomic.Bool
	finished   atomic.Bool
	shouldExit atomic.Bool
	progress   atomic.Bool

	err error

	deadlockDetection time.Duration
}

func NewCoroutine(ctx Context, fn func(ctx Context) error) Coroutine {
	s := &coState{
		blocking:          make(chan bool, 1),
		unblock:           make(chan bool),
		deadlockDetection: DeadlockDetection,
	}
	s.blocked.Store(true)

	go s.run(WithValue(ctx, coStateKey{}, s), fn)

	return s
}

func (s *coState) run(ctx Context, fn func(ctx Context) error) {
	defer s.finish()
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if err, ok := r.(error); ok && errors.Is(err, ErrCoroutineAlreadyFinished) {
			return
		}

		s.err = workflowerrors.NewPanicError(fmt.Sprintf("panic: %v", r))
	}()

	// Nothing runs before the first Execute
	s.wait()

	s.err = fn(ctx)
}

func (s *coState) finish() {
	s.finished.Store(true)
	s.blocking <- true
}

func (s *coState) Finished() bool {
	return s.finished.Load()
}

func (s *coState) Blocked() bool {
	return s.blocked.Load()
}

// MadeProgress records that the coroutine got further since the last Execute.
func (s *coState) MadeProgress() {
	s.progress.Store(true)
}

func (s *coState) Progress() bool {
	return s.progress.Load()
}

func (s *coState) Yield() {
	if s.shouldExit.Load() {
		panic(ErrCoroutineAlreadyFinished)
	}

	s.blocked.Store(true)
	s.blocking <- true

	s.wait()
}

// wait parks the coroutine until the next Execute.
func (s *coState) wait() {
	<-s.unblock

	if s.shouldExit.Load() {
		// Deferred calls still run, finish() reports the coroutine as done
		runtime.Goexit()
	}

	s.blocked.Store(false)
}

func (s *coState) Execute() {
	s.progress.Store(false)

	if s.Finished() {
		return
	}

	t := time.NewTimer(s.deadlockDetection)
	defer t.Stop()

	s.unblock <- true

	runtime.Gosched()

	select {
	case <-s.blocking:
	case <-t.C:
		panic("coroutine timed out")
	}
}

func (s *coState) Exit() {
	if s.Finished() {
		return
	}

	s.shouldExit.Store(true)
	s.Execute()
}

func (s *coState) Error() error {
	return s.err
}

func getCoState(ctx Context) *coState {
	s, ok := ctx.Value(coStateKey{}).(*coState)
	if !ok {
		panic("could not find coroutine state")
	}

	return s
}
