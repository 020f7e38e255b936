package tracing

const (
	WorkflowInstanceID  = "workflow.instance_id"
	WorkflowExecutionID = "workflow.execution_id"
	WorkflowName        = "workflow.name"

	WorkflowTaskID     = "workflow_task.id"
	WorkflowTaskEvents = "workflow_task.events"

	ActivityTaskID = "activity_task.id"
	ActivityName   = "activity.name"
	Attempts       = "activity.attempts"

	ScheduleEventID = "schedule_event_id"

	SignalName = "signal.name"
)
