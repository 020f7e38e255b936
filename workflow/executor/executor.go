package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/command"
	"github.com/cschleiden/loanflow/internal/contextvalue"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/internal/workflowstate"
	"github.com/cschleiden/loanflow/registry"
)

type ExecutionResult struct {
	// New state of the workflow instance
	State core.WorkflowInstanceState

	// Events executed during the task execution
	Executed []*history.Event

	// Activities that were scheduled
	ActivityEvents []*history.Event
}

type WorkflowHistoryProvider interface {
	GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error)
}

type WorkflowExecutor interface {
	ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error)

	Close()
}

type executor struct {
	registry          *registry.Registry
	historyProvider   WorkflowHistoryProvider
	workflow          *workflow
	workflowState     *workflowstate.WfState
	workflowCtx       sync.Context
	workflowCtxCancel sync.CancelFunc
	clock             clock.Clock
	logger            *slog.Logger
	lastSequenceID    int64
	completed         bool

	maxHistorySize int64
}

func NewExecutor(
	logger *slog.Logger,
	r *registry.Registry,
	cv converter.Converter,
	historyProvider WorkflowHistoryProvider,
	instance *core.WorkflowInstance,
	clock clock.Clock,
	maxHistorySize int64,
) (WorkflowExecutor, error) {
	logger = logger.With(
		log.InstanceIDKey, instance.InstanceID,
		log.ExecutionIDKey, instance.ExecutionID,
	)

	s := workflowstate.NewWorkflowState(instance, logger, clock)

	wfCtx := sync.Background()
	wfCtx = contextvalue.WithConverter(wfCtx, cv)
	wfCtx = workflowstate.WithWorkflowState(wfCtx, s)
	wfCtx, cancel := sync.WithCancel(wfCtx)

	return &executor{
		registry:          r,
		historyProvider:   historyProvider,
		workflowState:     s,
		workflowCtx:       wfCtx,
		workflowCtxCancel: cancel,
		clock:             clock,
		logger:            logger,
		maxHistorySize:    maxHistorySize,
	}, nil
}

// ExecuteTask brings the executor up to date with the task's history, applies the new events and
// returns the events produced by the workflow's commands.
func (e *executor) ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error) {
	logger := e.logger.With(log.TaskIDKey, t.ID)
	logger.Debug("Executing workflow task", slog.Int64(log.TaskLastSequenceIDKey, t.LastSequenceID))

	if t.WorkflowInstanceState == core.WorkflowInstanceStateFinished {
		// Late signals or activity results for an instance that is already done
		e.discard(logger, t.NewEvents)

		return &ExecutionResult{State: core.WorkflowInstanceStateFinished}, nil
	}

	replayFailed, err := e.catchUp(ctx, t, logger)
	if err != nil {
		return nil, err
	}

	executed := e.applyNewEvents(logger, t.NewEvents, replayFailed)

	if e.lastSequenceID+int64(len(executed)) >= e.maxHistorySize {
		e.workflowCompleted(nil, fmt.Errorf("workflow history size exceeded %d events", e.maxHistorySize))
	}

	state, commandEvents, activityEvents := e.runCommands()

	// Command events are already applied to the local state
	executed = append(executed, commandEvents...)
	for _, event := range executed {
		e.lastSequenceID++
		event.SequenceID = e.lastSequenceID
	}

	logger.Debug("Finished workflow task",
		log.ExecutedEventsKey, len(executed),
		log.TaskLastSequenceIDKey, e.lastSequenceID,
		log.WorkflowCompletedKey, state == core.WorkflowInstanceStateFinished,
	)

	return &ExecutionResult{
		State:          state,
		Executed:       executed,
		ActivityEvents: activityEvents,
	}, nil
}

func (e *executor) discard(logger *slog.Logger, events []*history.Event) {
	logger.Warn("Received workflow task for finished workflow instance, discarding events", "events", len(events))

	for _, event := range events {
		logger.Debug("Discarded event",
			log.EventIDKey, event.ID,
			log.EventTypeKey, event.Type.String(),
			log.ScheduleEventIDKey, event.ScheduleEventID)
	}
}

// catchUp replays any history the executor has not seen yet. It reports true when the replay failed and
// the workflow has been completed with the replay error.
func (e *executor) catchUp(ctx context.Context, t *backend.WorkflowTask, logger *slog.Logger) (bool, error) {
	switch {
	case t.LastSequenceID < e.lastSequenceID:
		return false, errors.New("task has older history than current state, cannot execute")

	case t.LastSequenceID == e.lastSequenceID:
		return false, nil
	}

	logger.Debug("Replaying history",
		log.TaskLastSequenceIDKey, t.LastSequenceID,
		log.LocalSequenceIDKey, e.lastSequenceID)

	h, err := e.historyProvider.GetWorkflowInstanceHistory(ctx, t.WorkflowInstance, &e.lastSequenceID)
	if err != nil {
		return false, fmt.Errorf("getting workflow history: %w", err)
	}

	if err := e.replay(h); err != nil {
		logger.Error("Error while replaying history", "error", err)

		e.workflowCompleted(nil, err)

		// New events continue after the task's history
		e.lastSequenceID = t.LastSequenceID

		return true, nil
	}

	if t.LastSequenceID != e.lastSequenceID {
		logger.Error("Replayed history does not match task",
			log.TaskLastSequenceIDKey, t.LastSequenceID,
			log.LocalSequenceIDKey, e.lastSequenceID)

		return false, errors.New("even after fetching history and replaying history executor state does not match task")
	}

	return false, nil
}

func (e *executor) replay(h []*history.Event) error {
	e.workflowState.SetReplaying(true)
	defer e.workflowState.SetReplaying(false)

	for _, event := range h {
		if event.SequenceID < e.lastSequenceID {
			return errors.New("history has older events than current state")
		}

		if err := e.apply(event); err != nil {
			return err
		}

		e.lastSequenceID = event.SequenceID
	}

	return nil
}

// applyNewEvents applies the task's new events behind a WorkflowTaskStarted event and returns the
// events that were applied.
func (e *executor) applyNewEvents(logger *slog.Logger, newEvents []*history.Event, skip bool) []*history.Event {
	started := history.NewPendingEvent(e.clock.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})
	if skip {
		return []*history.Event{started}
	}

	events := append([]*history.Event{started}, newEvents...)

	e.workflowState.SetReplaying(false)

	for i, event := range events {
		if err := e.apply(event); err != nil {
			logger.Error("Error while executing new events", "error", err)
			e.workflowCompleted(nil, err)

			return events[:i]
		}
	}

	if e.workflow != nil && e.workflow.Completed() && !e.completed {
		if n := e.workflowState.PendingFutures(); n > 0 {
			logger.Warn("Workflow completed with pending activities, their results will be discarded", "pending", n)
		}

		e.workflowCompleted(e.workflow.Result(), e.workflow.Error())
	}

	return events
}

func (e *executor) runCommands() (core.WorkflowInstanceState, []*history.Event, []*history.Event) {
	state := core.WorkflowInstanceStateActive
	events := make([]*history.Event, 0)
	activityEvents := make([]*history.Event, 0)

	for _, c := range e.workflowState.Commands() {
		r := c.Execute(e.clock)
		if r == nil {
			continue
		}

		if r.Completed {
			state = core.WorkflowInstanceStateFinished
		}

		events = append(events, r.Events...)
		activityEvents = append(activityEvents, r.ActivityEvents...)
	}

	return state, events, activityEvents
}

func (e *executor) Close() {
	if e.workflow == nil {
		return
	}

	e.logger.Debug("Stopping workflow executor")

	// Unblocks the workflow coroutines
	e.workflow.Close()
}

func (e *executor) apply(event *history.Event) error {
	e.logger.Debug("Executing event", eventFields(event, e.workflowState.Replaying())...)

	switch event.Type {
	case history.EventType_WorkflowExecutionStarted:
		return e.handleWorkflowExecutionStarted(event.Attributes.(*history.ExecutionStartedAttributes))

	case history.EventType_WorkflowExecutionFinished:
		e.completed = true
		return nil

	case history.EventType_WorkflowTaskStarted:
		e.workflowState.SetTime(event.Timestamp)
		return nil
	}

	if e.workflow == nil {
		return fmt.Errorf("received %v event before workflow was started", event.Type)
	}

	switch a := event.Attributes.(type) {
	case *history.ExecutionCanceledAttributes:
		e.workflowCtxCancel()
		return e.workflow.Continue()

	case *history.ActivityScheduledAttributes:
		return e.handleActivityScheduled(event, a)

	case *history.ActivityCompletedAttributes:
		return e.handleActivityResult(event, a.Result, nil)

	case *history.ActivityFailedAttributes:
		return e.handleActivityResult(event, nil, workflowerrors.ToError(a.Error))

	case *history.SignalReceivedAttributes:
		e.workflowState.ReceiveSignal(a.Name, a.Arg)
		return e.workflow.Continue()
	}

	return fmt.Errorf("unknown event type: %v", event.Type)
}

func (e *executor) handleWorkflowExecutionStarted(a *history.ExecutionStartedAttributes) error {
	if e.workflow != nil {
		return errors.New("workflow already started")
	}

	fn, err := e.registry.GetWorkflow(a.Name)
	if err != nil {
		return fmt.Errorf("workflow %s not found", a.Name)
	}

	e.workflow = newWorkflow(reflect.ValueOf(fn))

	return e.workflow.Execute(e.workflowCtx, a.Inputs)
}

// activityCommand looks up the command that scheduled the activity the event refers to.
func (e *executor) activityCommand(event *history.Event) (*command.ScheduleActivityCommand, error) {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)
	if c == nil {
		return nil, fmt.Errorf("no activity command for %v event with schedule event id %d", event.Type, event.ScheduleEventID)
	}

	sac, ok := c.(*command.ScheduleActivityCommand)
	if !ok {
		return nil, fmt.Errorf("previous workflow execution scheduled an activity, not: %v", c.Type())
	}

	return sac, nil
}

func (e *executor) handleActivityScheduled(event *history.Event, a *history.ActivityScheduledAttributes) error {
	sac, err := e.activityCommand(event)
	if err != nil {
		return fmt.Errorf("replaying activity %s: %w", a.Name, err)
	}

	if sac.Name != a.Name {
		return fmt.Errorf("previous workflow execution scheduled different type of activity: %s, %s", a.Name, sac.Name)
	}

	if sac.State() == command.CommandState_Pending {
		sac.Commit()
	}

	return nil
}

func (e *executor) handleActivityResult(event *history.Event, result payload.Payload, actErr error) error {
	sac, err := e.activityCommand(event)
	if err != nil {
		return err
	}

	resolve, ok := e.workflowState.FutureByScheduleEventID(event.ScheduleEventID)
	if !ok {
		return fmt.Errorf("no pending future for %v event with schedule event id %d", event.Type, event.ScheduleEventID)
	}

	if err := resolve(result, actErr); err != nil {
		return fmt.Errorf("setting activity result: %w", err)
	}

	e.workflowState.RemoveFuture(event.ScheduleEventID)
	sac.Done()

	return e.workflow.Continue()
}

func (e *executor) workflowCompleted(result payload.Payload, wfErr error) {
	if e.completed {
		return
	}

	e.completed = true

	eventID := e.workflowState.GetNextScheduleEventID()
	cmd := command.NewCompleteWorkflowCommand(eventID, result, wfErr)
	e.workflowState.AddCommand(cmd)
}

func eventFields(event *history.Event, replaying bool) []any {
	fields := []any{
		log.EventIDKey, event.ID,
		log.SeqIDKey, event.SequenceID,
		log.EventTypeKey, event.Type,
		log.ScheduleEventIDKey, event.ScheduleEventID,
		log.IsReplayingKey, replaying,
	}

	switch a := event.Attributes.(type) {
	case *history.ExecutionStartedAttributes:
		fields = append(fields, log.WorkflowNameKey, a.Name)
	case *history.SignalReceivedAttributes:
		fields = append(fields, log.SignalNameKey, a.Name)
	case *history.ActivityScheduledAttributes:
		fields = append(fields, log.ActivityNameKey, a.Name)
	}

	return fields
}
