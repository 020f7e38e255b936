package command

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
)

type ScheduleActivityCommand struct {
	command

	Name   string
	Inputs []payload.Payload

	Options ActivityOptions
}

// ActivityOptions are recorded with the scheduled activity and enforced by the activity worker
type ActivityOptions struct {
	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration
	RetryPolicy            *history.RetryPolicy
}

var _ Command = (*ScheduleActivityCommand)(nil)

func NewScheduleActivityCommand(id int64, name string, inputs []payload.Payload, options ActivityOptions) *ScheduleActivityCommand {
	return &ScheduleActivityCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
			name:  "ScheduleActivity",
		},
		Name:    name,
		Inputs:  inputs,
		Options: options,
	}
}

func (c *ScheduleActivityCommand) Commit() {
	c.transition(CommandState_Pending, CommandState_Committed)
}

func (c *ScheduleActivityCommand) Done() {
	c.transition(CommandState_Committed, CommandState_Done)
}

func (c *ScheduleActivityCommand) Execute(clock clock.Clock) *CommandResult {
	if c.state != CommandState_Pending {
		return nil
	}

	c.Commit()

	event := history.NewPendingEvent(
		clock.Now(),
		history.EventType_ActivityScheduled,
		&history.ActivityScheduledAttributes{
			Name:                   c.Name,
			Inputs:                 c.Inputs,
			StartToCloseTimeout:    c.Options.StartToCloseTimeout,
			ScheduleToCloseTimeout: c.Options.ScheduleToCloseTimeout,
			RetryPolicy:            c.Options.RetryPolicy,
		},
		history.ScheduleEventID(c.id))

	return &CommandResult{
		Events:         []*history.Event{event},
		ActivityEvents: []*history.Event{event},
	}
}
