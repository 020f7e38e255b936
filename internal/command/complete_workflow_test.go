package command

import (
	"errors"
	"testing"

	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/stretchr/testify/require"
)

func TestCompleteWorkflowCommand_StateTransitions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		f    func(t *testing.T, c *CompleteWorkflowCommand)
	}{
		{"Execute records finished event", nil, func(t *testing.T, c *CompleteWorkflowCommand) {
			r := assertExecuteWithEvent(t, c, CommandState_Done, history.EventType_WorkflowExecutionFinished)
			require.True(t, r.Completed)

			a := r.Events[0].Attributes.(*history.ExecutionCompletedAttributes)
			require.Nil(t, a.Error)
		}},
		{"Execute records error", errors.New("workflow failed"), func(t *testing.T, c *CompleteWorkflowCommand) {
			r := assertExecuteWithEvent(t, c, CommandState_Done, history.EventType_WorkflowExecutionFinished)

			a := r.Events[0].Attributes.(*history.ExecutionCompletedAttributes)
			require.NotNil(t, a.Error)
			require.Equal(t, "workflow failed", a.Error.Message)
		}},
		{"Commit", nil, func(t *testing.T, c *CompleteWorkflowCommand) {
			require.Equal(t, CommandState_Pending, c.State())

			c.Commit()
			require.Equal(t, CommandState_Done, c.State())

			assertExecuteNoEvent(t, c, CommandState_Done)
		}},
		{"Done_after_commit", nil, func(t *testing.T, c *CompleteWorkflowCommand) {
			c.Commit()

			require.PanicsWithError(t, "invalid state transition for command CompleteWorkflow: Done -> Done", func() {
				c.Done()
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCompleteWorkflowCommand(1, payload.Payload("{}"), tt.err)

			tt.f(t, cmd)
		})
	}
}

