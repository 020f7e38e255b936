package loan

import (
	"context"

	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/workflow"
)

// SignalProcessItem is the name of the signal the process service sends when an item of the
// process changes
const SignalProcessItem = "process-item"

type ProcessItemType string

const (
	ProcessItemTask    ProcessItemType = "TASK"
	ProcessItemProcess ProcessItemType = "PROCESS"
)

// ProcessItem is the payload of the process-item signal
type ProcessItem struct {
	ID   string          `json:"id"`
	Type ProcessItemType `json:"type"`
}

// completedTasks collects the ids of tasks reported as completed. Owned by a single workflow
// execution.
type completedTasks struct {
	ids map[string]struct{}
}

func newCompletedTasks() *completedTasks {
	return &completedTasks{ids: map[string]struct{}{}}
}

func (c *completedTasks) handle(item ProcessItem) {
	if item.Type != ProcessItemTask || item.ID == "" {
		return
	}

	c.ids[item.ID] = struct{}{}
}

func (c *completedTasks) contains(id string) func() bool {
	return func() bool {
		_, ok := c.ids[id]
		return ok
	}
}

// listenForCompletedTasks records every completed task signaled to the workflow
func listenForCompletedTasks(ctx workflow.Context) *completedTasks {
	tasks := newCompletedTasks()
	workflow.HandleSignal(ctx, SignalProcessItem, tasks.handle)

	return tasks
}

// SignalTaskCompleted notifies the workflow instance that the task with the given id is completed
func SignalTaskCompleted(ctx context.Context, c *client.Client, instanceID, taskID string) error {
	return c.SignalWorkflow(ctx, instanceID, SignalProcessItem, ProcessItem{ID: taskID, Type: ProcessItemTask})
}
