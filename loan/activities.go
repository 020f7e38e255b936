package loan

import (
	"context"

	"github.com/cschleiden/loanflow/activity"
	"github.com/cschleiden/loanflow/processes"
	"github.com/cschleiden/loanflow/workflow"
)

// Activities wraps the process service for use from workflows
type Activities struct {
	Service processes.Service
}

func (a *Activities) CreateTask(ctx context.Context, task *processes.Task) error {
	activity.Logger(ctx).Info("creating task", "task.id", task.ID, "task.code", task.TaskDefinitionCode)

	return classify(a.Service.CreateTask(ctx, task))
}

// CreateTaskAndWaitFinished creates the task and blocks the activity until the task is completed. Use
// with a start-to-close timeout that covers the expected completion time.
func (a *Activities) CreateTaskAndWaitFinished(ctx context.Context, task *processes.Task) error {
	return classify(a.Service.CreateTaskAndWaitFinished(ctx, task))
}

func (a *Activities) RetrieveTask(ctx context.Context, taskID string) (*processes.Task, error) {
	t, err := a.Service.RetrieveTask(ctx, taskID)
	return t, classify(err)
}

func (a *Activities) RetrieveProcess(ctx context.Context, processID string) (*processes.Process, error) {
	p, err := a.Service.RetrieveProcess(ctx, processID)
	return p, classify(err)
}

func (a *Activities) SaveProcessMetadata(ctx context.Context, processID, field string, value any) error {
	return classify(a.Service.SaveProcessMetadata(ctx, processID, field, value))
}

func (a *Activities) PatchProcessMetadata(ctx context.Context, processID string, patch []processes.JSONPatchOperation) error {
	return classify(a.Service.PatchProcessMetadata(ctx, processID, patch))
}

func (a *Activities) CompleteProcess(ctx context.Context, processID string) error {
	return classify(a.Service.CompleteProcess(ctx, processID))
}

// classify marks errors the service will keep returning as permanent so they are not retried
func classify(err error) error {
	if err == nil {
		return nil
	}

	if !processes.IsTemporary(err) {
		return workflow.NewPermanentError(err)
	}

	return err
}
