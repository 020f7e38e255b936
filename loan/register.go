package loan

import (
	"context"
	"fmt"

	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/currency"
	"github.com/cschleiden/loanflow/processes"
	"github.com/cschleiden/loanflow/worker"
	"github.com/cschleiden/loanflow/workflow"
)

// Register registers the loan workflow and all activities it uses with the worker
func Register(w *worker.Worker, service processes.Service, converter *currency.Converter) error {
	if err := w.RegisterWorkflow(LoanWorkflow); err != nil {
		return fmt.Errorf("registering loan workflow: %w", err)
	}

	if err := w.RegisterActivity(&Activities{Service: service}); err != nil {
		return fmt.Errorf("registering process activities: %w", err)
	}

	if err := w.RegisterActivity(&currency.Activities{Converter: converter}); err != nil {
		return fmt.Errorf("registering currency activities: %w", err)
	}

	return nil
}

// Start starts a loan workflow for the given process. The process id is used as instance id, so
// only one loan workflow can be active per process.
func Start(ctx context.Context, c *client.Client, processID string) (*workflow.Instance, error) {
	return c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: processID,
	}, LoanWorkflow, WorkflowRequest{ProcessID: processID})
}
