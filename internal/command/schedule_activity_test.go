package command

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/stretchr/testify/require"
)

func TestScheduleActivityCommand_StateTransitions(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T, c *ScheduleActivityCommand, clock *clock.Mock)
	}{
		{"Execute schedules activity", func(t *testing.T, c *ScheduleActivityCommand, clock *clock.Mock) {
			r := assertExecuteWithEvent(t, c, CommandState_Committed, history.EventType_ActivityScheduled)
			require.Len(t, r.ActivityEvents, 1)
			require.False(t, r.Completed)

			e := r.Events[0]
			require.Equal(t, int64(1), e.ScheduleEventID)

			a := e.Attributes.(*history.ActivityScheduledAttributes)
			require.Equal(t, "CreateTask", a.Name)
			require.Equal(t, 10*time.Minute, a.StartToCloseTimeout)
			require.Equal(t, 356*24*time.Hour, a.ScheduleToCloseTimeout)
			require.Equal(t, 0, a.RetryPolicy.MaxAttempts)
		}},
		{"Execute only once", func(t *testing.T, c *ScheduleActivityCommand, clock *clock.Mock) {
			assertExecuteWithEvent(t, c, CommandState_Committed, history.EventType_ActivityScheduled)
			assertExecuteNoEvent(t, c, CommandState_Committed)
		}},
		{"Commit", func(t *testing.T, c *ScheduleActivityCommand, _ *clock.Mock) {
			require.Equal(t, CommandState_Pending, c.State())

			c.Commit()
			require.Equal(t, CommandState_Committed, c.State())

			assertExecuteNoEvent(t, c, CommandState_Committed)
		}},
		{"Done_after_commit", func(t *testing.T, c *ScheduleActivityCommand, _ *clock.Mock) {
			c.Commit()

			c.Done()
			require.Equal(t, CommandState_Done, c.State())
		}},
		{"Done_before_commit", func(t *testing.T, c *ScheduleActivityCommand, _ *clock.Mock) {
			require.PanicsWithError(t, "invalid state transition for command ScheduleActivity: Pending -> Done", func() {
				c.Done()
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clock.NewMock()
			cmd := NewScheduleActivityCommand(1, "CreateTask", []payload.Payload{}, ActivityOptions{
				StartToCloseTimeout:    10 * time.Minute,
				ScheduleToCloseTimeout: 356 * 24 * time.Hour,
				RetryPolicy:            &history.RetryPolicy{MaxAttempts: 0},
			})

			tt.f(t, cmd, clock)
		})
	}
}
