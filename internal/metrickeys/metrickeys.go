package metrickeys

const (
	Prefix = "workflows."

	// Workflows
	WorkflowInstanceCreated  = Prefix + "workflow.created"
	WorkflowInstanceFinished = Prefix + "workflow.finished"

	WorkflowTaskProcessed = Prefix + "workflow.task.processed"
	WorkflowTaskDelay     = Prefix + "workflow.task.time_in_queue"

	WorkflowInstanceCacheSize     = Prefix + "workflow.cache.size"
	WorkflowInstanceCacheEviction = Prefix + "workflow.cache.eviction"

	// Activities
	ActivityTaskProcessed = Prefix + "activity.task.processed"
	ActivityTaskDelay     = Prefix + "activity.task.time_in_queue"
	ActivityTaskAttempts  = Prefix + "activity.task.attempts"

	// Domain
	CurrencyConversions = Prefix + "currency.conversions"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	// Reason for evicting an entry from the workflow instance cache
	EvictionReason = "reason"

	ActivityName = "activity"

	WorkflowName = "workflow"

	// Outcome of a task or operation, e.g. "completed" or "failed"
	Result = "result"

	CurrencyPair = "pair"
)
