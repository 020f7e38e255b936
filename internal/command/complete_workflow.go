package command

import (
	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

type CompleteWorkflowCommand struct {
	command

	Result payload.Payload
	Error  *workflowerrors.Error
}

var _ Command = (*CompleteWorkflowCommand)(nil)

func NewCompleteWorkflowCommand(id int64, result payload.Payload, err error) *CompleteWorkflowCommand {
	return &CompleteWorkflowCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
			name:  "CompleteWorkflow",
		},
		Result: result,
		Error:  workflowerrors.FromError(err),
	}
}

// Commit finishes the command right away, there is no result to wait for
func (c *CompleteWorkflowCommand) Commit() {
	c.transition(CommandState_Pending, CommandState_Done)
}

func (c *CompleteWorkflowCommand) Done() {
	c.transition(CommandState_Committed, CommandState_Done)
}

func (c *CompleteWorkflowCommand) Execute(clock clock.Clock) *CommandResult {
	if c.state != CommandState_Pending {
		return nil
	}

	c.Commit()

	return &CommandResult{
		Completed: true,
		Events: []*history.Event{
			history.NewPendingEvent(
				clock.Now(),
				history.EventType_WorkflowExecutionFinished,
				&history.ExecutionCompletedAttributes{
					Result: c.Result,
					Error:  c.Error,
				},
			),
		},
	}
}
