package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/processes"
	"github.com/stretchr/testify/require"
)

func newService() *Service {
	s := New()
	s.AddProcess(&processes.Process{ID: "P1", InitiatorID: "U1"})
	return s
}

func Test_Service(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T, s *Service)
	}{
		{
			name: "CreateTask is idempotent",
			f: func(t *testing.T, s *Service) {
				var created int
				s.OnTaskCreated(func(*processes.Task) { created++ })

				task := &processes.Task{ID: "T1", ProcessID: "P1", TaskDefinitionCode: processes.TaskLoanApplication}
				require.NoError(t, s.CreateTask(ctx, task))
				require.NoError(t, s.CreateTask(ctx, task))

				require.Len(t, s.Tasks("P1"), 1)
				require.Equal(t, 1, created)
				require.Equal(t, 2, s.Calls("CreateTask"))
			},
		},
		{
			name: "CreateTask requires id",
			f: func(t *testing.T, s *Service) {
				err := s.CreateTask(ctx, &processes.Task{ProcessID: "P1", TaskDefinitionCode: processes.TaskLoanApplication})
				require.ErrorIs(t, err, processes.ErrInvalidTask)
			},
		},
		{
			name: "CreateTask for unknown process",
			f: func(t *testing.T, s *Service) {
				err := s.CreateTask(ctx, &processes.Task{ID: "T1", ProcessID: "P2", TaskDefinitionCode: processes.TaskLoanApplication})
				var nf *processes.NotFoundError
				require.ErrorAs(t, err, &nf)
			},
		},
		{
			name: "CompleteTask merges data and fires hooks",
			f: func(t *testing.T, s *Service) {
				var completed []string
				s.OnTaskCompleted(func(task *processes.Task) { completed = append(completed, task.ID) })

				require.NoError(t, s.CreateTask(ctx, &processes.Task{
					ID: "T1", ProcessID: "P1", TaskDefinitionCode: processes.TaskApproveLoan,
					Data: processes.TaskData{processes.DataAmount: "6000"},
				}))

				require.NoError(t, s.CompleteTask("T1", processes.TaskData{processes.DataApproval: "YES"}))
				require.NoError(t, s.CompleteTask("T1", nil))

				task, err := s.RetrieveTask(ctx, "T1")
				require.NoError(t, err)
				require.Equal(t, processes.TaskStateCompleted, task.State)
				require.Equal(t, "6000", task.Data.String(processes.DataAmount))
				require.Equal(t, "YES", task.Data.String(processes.DataApproval))
				require.Equal(t, []string{"T1"}, completed)
			},
		},
		{
			name: "CreateTaskAndWaitFinished blocks until completed",
			f: func(t *testing.T, s *Service) {
				s.OnTaskCreated(func(task *processes.Task) {
					go func() {
						time.Sleep(time.Millisecond * 10)
						s.CompleteTask(task.ID, nil)
					}()
				})

				err := s.CreateTaskAndWaitFinished(ctx, &processes.Task{ID: "T1", ProcessID: "P1", TaskDefinitionCode: processes.TaskLoanApplication})
				require.NoError(t, err)
			},
		},
		{
			name: "CreateTaskAndWaitFinished honors context",
			f: func(t *testing.T, s *Service) {
				ctx, cancel := context.WithTimeout(ctx, time.Millisecond*10)
				defer cancel()

				err := s.CreateTaskAndWaitFinished(ctx, &processes.Task{ID: "T1", ProcessID: "P1", TaskDefinitionCode: processes.TaskLoanApplication})
				require.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
		{
			name: "Metadata",
			f: func(t *testing.T, s *Service) {
				require.NoError(t, s.SaveProcessMetadata(ctx, "P1", "STATUS", "open"))
				require.NoError(t, s.PatchProcessMetadata(ctx, "P1", []processes.JSONPatchOperation{
					{Op: "add", Path: "/FIRST_NAME", Value: "Ada"},
					{Op: "add", Path: "/LAST_NAME", Value: "Lovelace"},
					{Op: "remove", Path: "/STATUS"},
				}))

				p, err := s.RetrieveProcess(ctx, "P1")
				require.NoError(t, err)
				require.Equal(t, map[string]any{"FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}, p.Metadata)

				err = s.PatchProcessMetadata(ctx, "P1", []processes.JSONPatchOperation{{Op: "move", Path: "/A"}})
				require.Error(t, err)
			},
		},
		{
			name: "CompleteProcess",
			f: func(t *testing.T, s *Service) {
				require.NoError(t, s.CompleteProcess(ctx, "P1"))

				p, err := s.RetrieveProcess(ctx, "P1")
				require.NoError(t, err)
				require.Equal(t, processes.ProcessStateCompleted, p.State)

				var nf *processes.NotFoundError
				require.ErrorAs(t, s.CompleteProcess(ctx, "P2"), &nf)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, newService())
		})
	}
}
