package workflow

import (
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/contextvalue"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowstate"
)

type Channel[T any] interface {
	sync.Channel[T]
}

// HandleSignal registers handler for signals with the given name. Signals are delivered in the order
// they were recorded, between resumptions of the workflow, so the handler can safely mutate state the
// workflow reads. Signals received before registration are delivered on registration. Handlers must
// not block. Payloads that cannot be decoded into T are logged and dropped.
func HandleSignal[T any](ctx Context, name string, handler func(T)) {
	wfState := workflowstate.WorkflowState(ctx)
	cv := contextvalue.Converter(ctx)

	wfState.HandleSignal(name, func(p payload.Payload) {
		var v T
		if err := cv.From(p, &v); err != nil {
			wfState.Logger().Warn("Dropping signal with invalid payload", log.SignalNameKey, name, "error", err)
			return
		}

		handler(v)
	})
}

// NewSignalChannel returns a channel receiving all signals with the given name
func NewSignalChannel[T any](ctx Context, name string) Channel[T] {
	c := sync.NewChannel[T]()

	HandleSignal(ctx, name, c.Send)

	return c
}
