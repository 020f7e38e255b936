package redis

import (
	"fmt"
	"strings"

	"github.com/cschleiden/loanflow/core"
)

type keys struct {
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &keys{prefix: prefix}
}

// activeInstanceExecutionKey returns the key holding the execution id of the active execution of the given instance
func (k *keys) activeInstanceExecutionKey(instanceID string) string {
	return fmt.Sprintf("%vactive-instance-execution:%v", k.prefix, instanceID)
}

// latestInstanceExecutionKey returns the key holding the execution id of the most recent execution of the given instance
func (k *keys) latestInstanceExecutionKey(instanceID string) string {
	return fmt.Sprintf("%vlatest-instance-execution:%v", k.prefix, instanceID)
}

func instanceSegment(instance *core.WorkflowInstance) string {
	return fmt.Sprintf("%v:%v", instance.InstanceID, instance.ExecutionID)
}

func (k *keys) instanceKey(instance *core.WorkflowInstance) string {
	return k.instanceKeyFromSegment(instanceSegment(instance))
}

func (k *keys) instanceKeyFromSegment(segment string) string {
	return fmt.Sprintf("%vinstance:%v", k.prefix, segment)
}

// instancesActive is the SET of segments of all active executions
func (k *keys) instancesActive() string {
	return k.prefix + "instances-active"
}

func (k *keys) pendingEventsKey(instance *core.WorkflowInstance) string {
	return fmt.Sprintf("%vpending-events:%v", k.prefix, instanceSegment(instance))
}

func (k *keys) historyKey(instance *core.WorkflowInstance) string {
	return fmt.Sprintf("%vhistory:%v", k.prefix, instanceSegment(instance))
}

// activitiesKey is the HASH of scheduled activities by activity id
func (k *keys) activitiesKey() string {
	return k.prefix + "activities"
}
