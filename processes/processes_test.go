package processes

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskData_String(t *testing.T) {
	d := TaskData{
		DataCurrency: "USD",
		DataAmount:   float64(1000),
		"EMPTY":      nil,
	}

	require.Equal(t, "USD", d.String(DataCurrency))
	require.Equal(t, "1000", d.String(DataAmount))
	require.Equal(t, "", d.String("EMPTY"))
	require.Equal(t, "", d.String(DataApproval))
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		task    *Task
		wantErr bool
	}{
		{"valid", &Task{ID: "t1", ProcessID: "p1", TaskDefinitionCode: TaskLoanApplication}, false},
		{"nil", nil, true},
		{"missing id", &Task{ProcessID: "p1", TaskDefinitionCode: TaskLoanApplication}, true},
		{"missing process", &Task{ID: "t1", TaskDefinitionCode: TaskLoanApplication}, true},
		{"missing code", &Task{ID: "t1", ProcessID: "p1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTask(tt.task)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTask)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", &NotFoundError{Entity: "task", ID: "t1"}, false},
		{"wrapped not found", fmt.Errorf("retrieving: %w", &NotFoundError{Entity: "task", ID: "t1"}), false},
		{"invalid task", &InvalidTaskError{Reason: "task id is required"}, false},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"request timeout", &StatusError{StatusCode: http.StatusRequestTimeout}, true},
		{"too many requests", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"transport", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTemporary(tt.err))
		})
	}
}
