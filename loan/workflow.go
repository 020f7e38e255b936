// Package loan implements the loan approval process: a loan application task is handed to the
// applicant, large loans are sent for manual approval, and the applicant is notified of the outcome.
package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/loanflow/currency"
	"github.com/cschleiden/loanflow/processes"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/shopspring/decimal"
)

// MessageOK is returned by a successfully completed loan workflow
const MessageOK = "OK"

// Loans above this amount in EUR need manual approval
var approvalThreshold = decimal.NewFromInt(5000)

type WorkflowRequest struct {
	ProcessID string `json:"processId"`
}

type WorkflowResponse struct {
	Message string `json:"message"`
}

// Process service calls are retried until the service recovers or the process is abandoned
var processActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout:    10 * time.Minute,
	ScheduleToCloseTimeout: 356 * 24 * time.Hour,
	RetryOptions: workflow.RetryOptions{
		MaxAttempts:        workflow.Unlimited,
		FirstRetryInterval: time.Second,
		MaxRetryInterval:   time.Minute,
		BackoffCoefficient: 2,
	},
}

var currencyActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryOptions:        workflow.DefaultRetryOptions,
}

var errMissingTaskID = errors.New("task id missing")

// Used to reference activities by method; activities are never called on it
var (
	pa *Activities
	ca *currency.Activities
)

// LoanWorkflow drives a single loan process from application to notification
func LoanWorkflow(ctx workflow.Context, req WorkflowRequest) (WorkflowResponse, error) {
	logger := workflow.Logger(ctx).With("process.id", req.ProcessID)
	logger.Info("loan workflow started")

	tasks := listenForCompletedTasks(ctx)

	// Loan application
	applicationID, err := createTaskAndWait(ctx, tasks, &processes.Task{
		ID:                 workflow.NewUUID(ctx),
		ProcessID:          req.ProcessID,
		TaskDefinitionCode: processes.TaskLoanApplication,
	})
	if err != nil {
		return WorkflowResponse{}, fmt.Errorf("loan application: %w", err)
	}

	application, err := workflow.ExecuteActivity[*processes.Task](ctx, processActivityOptions, pa.RetrieveTask, applicationID).Get(ctx)
	if err != nil {
		return WorkflowResponse{}, fmt.Errorf("retrieving loan application: %w", err)
	}

	firstName := application.Data.String(processes.DataFirstName)
	lastName := application.Data.String(processes.DataLastName)

	patch := []processes.JSONPatchOperation{
		{Op: "add", Path: "/" + processes.DataFirstName, Value: firstName},
		{Op: "add", Path: "/" + processes.DataLastName, Value: lastName},
	}
	if _, err := workflow.ExecuteActivity[any](ctx, processActivityOptions, pa.PatchProcessMetadata, req.ProcessID, patch).Get(ctx); err != nil {
		return WorkflowResponse{}, fmt.Errorf("saving applicant: %w", err)
	}

	amountEUR, err := amountInEUR(ctx, application.Data.String(processes.DataAmount), application.Data.String(processes.DataCurrency))
	if err != nil {
		return WorkflowResponse{}, fmt.Errorf("converting amount: %w", err)
	}

	authorized := true
	if amountEUR.GreaterThan(approvalThreshold) {
		logger.Info("loan needs approval", "amount", amountEUR.String())

		authorized, err = approve(ctx, tasks, req.ProcessID, firstName, lastName, amountEUR)
		if err != nil {
			return WorkflowResponse{}, fmt.Errorf("loan approval: %w", err)
		}
	}

	process, err := workflow.ExecuteActivity[*processes.Process](ctx, processActivityOptions, pa.RetrieveProcess, req.ProcessID).Get(ctx)
	if err != nil {
		return WorkflowResponse{}, fmt.Errorf("retrieving process: %w", err)
	}

	notification := processes.TaskNotificationRejection
	if authorized {
		notification = processes.TaskNotificationGranted
	}

	if _, err := workflow.ExecuteActivity[any](ctx, processActivityOptions, pa.CreateTask, &processes.Task{
		ID:                 workflow.NewUUID(ctx),
		ProcessID:          req.ProcessID,
		TaskDefinitionCode: notification,
		OwnerID:            process.InitiatorID,
	}).Get(ctx); err != nil {
		return WorkflowResponse{}, fmt.Errorf("notifying applicant: %w", err)
	}

	if _, err := workflow.ExecuteActivity[any](ctx, processActivityOptions, pa.CompleteProcess, req.ProcessID).Get(ctx); err != nil {
		return WorkflowResponse{}, fmt.Errorf("completing process: %w", err)
	}

	logger.Info("loan workflow finished", "authorized", authorized)

	return WorkflowResponse{Message: MessageOK}, nil
}

// createTaskAndWait creates the task and suspends until its completion is signaled. Returns the id
// of the task.
func createTaskAndWait(ctx workflow.Context, tasks *completedTasks, task *processes.Task) (string, error) {
	if task.ID == "" {
		return "", workflow.NewPermanentError(errMissingTaskID)
	}

	if _, err := workflow.ExecuteActivity[any](ctx, processActivityOptions, pa.CreateTask, task).Get(ctx); err != nil {
		return "", fmt.Errorf("creating task %v: %w", task.TaskDefinitionCode, err)
	}

	workflow.Logger(ctx).Debug("waiting for task", "task.id", task.ID, "task.code", task.TaskDefinitionCode)

	if err := workflow.Await(ctx, tasks.contains(task.ID)); err != nil {
		return "", fmt.Errorf("waiting for task %v: %w", task.TaskDefinitionCode, err)
	}

	return task.ID, nil
}

// amountInEUR returns the given amount in EUR. Amounts already in EUR are not converted.
func amountInEUR(ctx workflow.Context, amount, cur string) (decimal.Decimal, error) {
	if cur == string(currency.EUR) {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Decimal{}, workflow.NewPermanentError(&currency.InvalidAmountError{Amount: amount})
		}

		return d, nil
	}

	converted, err := workflow.ExecuteActivity[string](ctx, currencyActivityOptions, ca.ConvertCurrency, amount, cur, string(currency.EUR)).Get(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	d, err := decimal.NewFromString(converted)
	if err != nil {
		return decimal.Decimal{}, workflow.NewPermanentError(fmt.Errorf("parsing converted amount %q: %w", converted, err))
	}

	return d, nil
}

func approve(ctx workflow.Context, tasks *completedTasks, processID, firstName, lastName string, amountEUR decimal.Decimal) (bool, error) {
	approvalID, err := createTaskAndWait(ctx, tasks, &processes.Task{
		ID:                 workflow.NewUUID(ctx),
		ProcessID:          processID,
		TaskDefinitionCode: processes.TaskApproveLoan,
		Data: processes.TaskData{
			processes.DataFirstName: firstName,
			processes.DataLastName:  lastName,
			processes.DataAmount:    amountEUR.String(),
		},
	})
	if err != nil {
		return false, err
	}

	approval, err := workflow.ExecuteActivity[*processes.Task](ctx, processActivityOptions, pa.RetrieveTask, approvalID).Get(ctx)
	if err != nil {
		return false, fmt.Errorf("retrieving approval: %w", err)
	}

	return approval.Data.String(processes.DataApproval) == "YES", nil
}
