package workflowerrors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeoutError(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T)
	}{
		{
			name: "start-to-close timeouts can be retried",
			f: func(t *testing.T) {
				err := &TimeoutError{Timeout: time.Second}

				require.True(t, CanRetry(err))
				require.True(t, HasKind(err, KindActivityTimeout))
				require.EqualError(t, err, "activity attempt exceeded start-to-close timeout of 1s")
			},
		},
		{
			name: "schedule-to-close timeouts are permanent",
			f: func(t *testing.T) {
				err := &TimeoutError{Timeout: time.Minute, ScheduleToClose: true, LastErr: errors.New("upstream unavailable")}

				require.False(t, CanRetry(err))

				we := FromError(err)
				require.True(t, we.Permanent)
				require.Equal(t, KindActivityTimeout, we.Kind)
				require.Equal(t, "upstream unavailable", we.Cause.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.f)
	}
}
