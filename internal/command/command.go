package command

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend/history"
)

type CommandState int

//	┌───────┐
//	│Pending│
//	└───────┘
//	    ▼
//	┌─────────┐
//	│Committed│
//	└─────────┘
//	    ▼
//	 ┌────┐
//	 │Done│
//	 └────┘
const (
	CommandState_Pending CommandState = iota
	CommandState_Committed
	CommandState_Done
)

func (cs CommandState) String() string {
	switch cs {
	case CommandState_Pending:
		return "Pending"
	case CommandState_Committed:
		return "Committed"
	case CommandState_Done:
		return "Done"
	default:
		return fmt.Sprintf("CommandState(%d)", int(cs))
	}
}

type Command interface {
	ID() int64

	// Execute emits the events for a pending command and commits it. Returns nil for commands that
	// are no longer pending, e.g. because they were committed while replaying history.
	Execute(clock clock.Clock) *CommandResult

	// Commit marks the command as committed without emitting any events. Used when the
	// command's event is already part of the history.
	Commit()

	// Done marks the command as done. This transitions the state to done and indicates that the result
	// of this command has been applied.
	Done()

	State() CommandState

	Type() string
}

type CommandResult struct {
	// Completed is true if this command finishes the workflow instance
	Completed bool

	Events         []*history.Event
	ActivityEvents []*history.Event
}

type command struct {
	state CommandState

	id int64

	name string
}

func (c *command) ID() int64 {
	return c.id
}

func (c *command) State() CommandState {
	return c.state
}

func (c *command) Type() string {
	return c.name
}

func (c *command) transition(from, to CommandState) {
	if c.state != from {
		panic(fmt.Errorf("invalid state transition for command %s: %s -> %s", c.name, c.state, to))
	}

	c.state = to
}
