package workflowstate

import (
	"github.com/cschleiden/loanflow/backend/payload"
)

// ReceiveSignal delivers a signal to the handler registered for its name. Signals without a
// handler are buffered in arrival order until one is registered.
func (wf *WfState) ReceiveSignal(name string, arg payload.Payload) {
	if h, ok := wf.signalHandlers[name]; ok {
		h(arg)
		return
	}

	wf.pendingSignals[name] = append(wf.pendingSignals[name], arg)
}

// HandleSignal registers the handler for the given signal name and drains any buffered signals
// into it. Registering a second handler for the same name replaces the first.
func (wf *WfState) HandleSignal(name string, handler func(payload.Payload)) {
	wf.signalHandlers[name] = handler

	pending := wf.pendingSignals[name]
	delete(wf.pendingSignals, name)

	for _, arg := range pending {
		handler(arg)
	}
}

func (wf *WfState) PendingSignals(name string) int {
	return len(wf.pendingSignals[name])
}
