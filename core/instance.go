package core

type WorkflowInstance struct {
	// InstanceID is the ID of the workflow instance. It is chosen by the caller and identifies
	// the business case, e.g. the process a loan workflow drives.
	InstanceID string `json:"instance_id,omitempty"`

	// ExecutionID is the ID of the current execution of the workflow instance.
	ExecutionID string `json:"execution_id,omitempty"`
}

func NewWorkflowInstance(instanceID, executionID string) *WorkflowInstance {
	return &WorkflowInstance{
		InstanceID:  instanceID,
		ExecutionID: executionID,
	}
}

func (wi *WorkflowInstance) String() string {
	return wi.InstanceID + "/" + wi.ExecutionID
}
