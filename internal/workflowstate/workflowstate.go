package workflowstate

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/command"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

type key int

var workflowCtxKey key

// DecodingSettable sets a pending future from a recorded result payload or error
type DecodingSettable func(v payload.Payload, err error) error

type WfState struct {
	instance        *core.WorkflowInstance
	scheduleEventID int64
	commands        []command.Command
	pendingFutures  map[int64]DecodingSettable
	replaying       bool

	signalHandlers map[string]func(payload.Payload)
	pendingSignals map[string][]payload.Payload

	rand *rand.ChaCha8

	logger *slog.Logger
	clock  clock.Clock
	time   time.Time
}

func NewWorkflowState(instance *core.WorkflowInstance, logger *slog.Logger, clock clock.Clock) *WfState {
	state := &WfState{
		instance:        instance,
		commands:        []command.Command{},
		scheduleEventID: 1,
		pendingFutures:  map[int64]DecodingSettable{},
		signalHandlers:  map[string]func(payload.Payload){},
		pendingSignals:  map[string][]payload.Payload{},
		rand:            rand.NewChaCha8(seed(instance)),
		clock:           clock,
	}

	state.logger = NewReplayLogger(state, logger)

	return state
}

// seed derives the random source for an execution from its identity, so every replay of the
// same execution observes the same sequence.
func seed(instance *core.WorkflowInstance) [32]byte {
	return sha256.Sum256([]byte(instance.InstanceID + "/" + instance.ExecutionID))
}

func WorkflowState(ctx sync.Context) *WfState {
	return ctx.Value(workflowCtxKey).(*WfState)
}

func WithWorkflowState(ctx sync.Context, wfState *WfState) sync.Context {
	return sync.WithValue(ctx, workflowCtxKey, wfState)
}

func (wf *WfState) Instance() *core.WorkflowInstance {
	return wf.instance
}

func (wf *WfState) GetNextScheduleEventID() int64 {
	scheduleEventID := wf.scheduleEventID
	wf.scheduleEventID++
	return scheduleEventID
}

func (wf *WfState) TrackFuture(scheduleEventID int64, f DecodingSettable) {
	wf.pendingFutures[scheduleEventID] = f
}

func (wf *WfState) FutureByScheduleEventID(scheduleEventID int64) (DecodingSettable, bool) {
	f, ok := wf.pendingFutures[scheduleEventID]
	return f, ok
}

func (wf *WfState) RemoveFuture(scheduleEventID int64) {
	delete(wf.pendingFutures, scheduleEventID)
}

func (wf *WfState) PendingFutures() int {
	return len(wf.pendingFutures)
}

func (wf *WfState) Commands() []command.Command {
	return wf.commands
}

func (wf *WfState) AddCommand(cmd command.Command) {
	wf.commands = append(wf.commands, cmd)
}

func (wf *WfState) CommandByScheduleEventID(scheduleEventID int64) command.Command {
	for _, c := range wf.commands {
		if c.ID() == scheduleEventID {
			return c
		}
	}

	return nil
}

func (wf *WfState) SetReplaying(r bool) {
	wf.replaying = r
}

func (wf *WfState) Replaying() bool {
	return wf.replaying
}

func (wf *WfState) SetTime(t time.Time) {
	wf.time = t
}

// Time returns the logical time of the workflow, i.e. the timestamp of the event being processed
func (wf *WfState) Time() time.Time {
	return wf.time
}

func (wf *WfState) Clock() clock.Clock {
	return wf.clock
}

func (wf *WfState) Logger() *slog.Logger {
	return wf.logger
}

// Rand returns the deterministic random source of this execution. It must only be read
// from workflow code.
func (wf *WfState) Rand() io.Reader {
	return wf.rand
}

// AsDecodingSettable returns a DecodingSettable which decodes the result payload into f's type.
// Errors are tagged with the activity that produced them.
func AsDecodingSettable[T any](cv converter.Converter, activityName string, f sync.SettableFuture[T]) DecodingSettable {
	return func(v payload.Payload, err error) error {
		var t T

		if err != nil {
			var we *workflowerrors.Error
			if errors.As(err, &we) && we.Activity == "" {
				we.Activity = activityName
			}

			f.Set(t, err)
			return nil
		}

		if v != nil {
			if err := cv.From(v, &t); err != nil {
				err = fmt.Errorf("unmarshalling result of %s: %w", activityName, err)
				f.Set(t, err)
				return err
			}
		}

		f.Set(t, nil)
		return nil
	}
}
