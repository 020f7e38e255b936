// Package processes defines the contract of the external process and task service the loan workflow
// drives: processes are business cases, tasks are units of human or system work within a process.
package processes

import (
	"context"
	"fmt"
)

type TaskDefinitionCode string

const (
	TaskLoanApplication       TaskDefinitionCode = "LOAN_APPLICATION"
	TaskApproveLoan           TaskDefinitionCode = "APPROVE_LOAN"
	TaskNotificationGranted   TaskDefinitionCode = "NOTIFICATION_GRANTED"
	TaskNotificationRejection TaskDefinitionCode = "NOTIFICATION_REJECTION"
)

type TaskState string

const (
	TaskStateReady     TaskState = "READY"
	TaskStateCompleted TaskState = "COMPLETED"
)

type ProcessState string

const (
	ProcessStateRunning   ProcessState = "RUNNING"
	ProcessStateCompleted ProcessState = "COMPLETED"
)

// Data element names used by the loan tasks
const (
	DataCurrency  = "CURRENCY"
	DataAmount    = "AMOUNT"
	DataFirstName = "FIRST_NAME"
	DataLastName  = "LAST_NAME"
	DataApproval  = "APPROVAL"
)

type Process struct {
	ID          string         `json:"id"`
	InitiatorID string         `json:"initiatorId,omitempty"`
	State       ProcessState   `json:"state,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskData maps named data elements of a task to their values
type TaskData map[string]any

// String returns the element as a string. Missing elements are empty, non-string values are
// formatted.
func (d TaskData) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

type Task struct {
	// ID is chosen by the caller so creating the same task again is idempotent
	ID                 string             `json:"id"`
	ProcessID          string             `json:"processId"`
	TaskDefinitionCode TaskDefinitionCode `json:"taskDefinitionCode"`
	OwnerID            string             `json:"ownerId,omitempty"`
	State              TaskState          `json:"state,omitempty"`
	Data               TaskData           `json:"data,omitempty"`
}

type JSONPatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Service is the process and task service
type Service interface {
	// CreateTask creates the given task. Creating a task with an id that already exists is not an
	// error.
	CreateTask(ctx context.Context, task *Task) error

	// CreateTaskAndWaitFinished creates the given task and blocks until it is completed
	CreateTaskAndWaitFinished(ctx context.Context, task *Task) error

	// RetrieveTask returns the task with the given id or a *NotFoundError
	RetrieveTask(ctx context.Context, taskID string) (*Task, error)

	// RetrieveProcess returns the process with the given id or a *NotFoundError
	RetrieveProcess(ctx context.Context, processID string) (*Process, error)

	// SaveProcessMetadata sets a single metadata field of the process
	SaveProcessMetadata(ctx context.Context, processID, field string, value any) error

	// PatchProcessMetadata applies a JSON patch to the metadata of the process
	PatchProcessMetadata(ctx context.Context, processID string, patch []JSONPatchOperation) error

	// CompleteProcess marks the process as completed
	CompleteProcess(ctx context.Context, processID string) error
}

// ValidateTask returns ErrInvalidTask if the task cannot be created
func ValidateTask(task *Task) error {
	if task == nil || task.ID == "" {
		return &InvalidTaskError{Reason: "task id is required"}
	}

	if task.ProcessID == "" {
		return &InvalidTaskError{Reason: "process id is required"}
	}

	if task.TaskDefinitionCode == "" {
		return &InvalidTaskError{Reason: "task definition code is required"}
	}

	return nil
}
