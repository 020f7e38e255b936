package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/test"
	"github.com/cschleiden/loanflow/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func Test_RedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.BackendTest(t, getCreateBackend(t), nil)
}

func Test_EndToEndRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.EndToEndBackendTest(t, getCreateBackend(t), nil)
}

func Test_RedisBackend_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b1, err := NewRedisBackend(client, WithKeyPrefix("tenant-a"))
	require.NoError(t, err)

	b2, err := NewRedisBackend(client, WithKeyPrefix("tenant-b"))
	require.NoError(t, err)

	ctx := context.Background()

	wfi := core.NewWorkflowInstance("loan-1", "exec-1")
	require.NoError(t, b1.CreateWorkflowInstance(ctx, wfi, history.NewPendingEvent(
		time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{Name: "LoanWorkflow"})))

	require.True(t, mr.Exists("tenant-a:instance:loan-1:exec-1"))

	s1, err := b1.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), s1.ActiveWorkflowInstances)
	require.Equal(t, int64(1), s1.PendingWorkflowTasks)

	s2, err := b2.GetStats(ctx)
	require.NoError(t, err)
	require.Zero(t, s2.ActiveWorkflowInstances)
	require.Zero(t, s2.PendingWorkflowTasks)

	// Same instance id can be used under another prefix
	require.NoError(t, b2.CreateWorkflowInstance(ctx, wfi, history.NewPendingEvent(
		time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{Name: "LoanWorkflow"})))

	task, err := b2.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, "loan-1", task.WorkflowInstance.InstanceID)
}

// getCreateBackend returns a setup function creating a backend on a fresh in-memory redis server
func getCreateBackend(t *testing.T) test.Setup {
	return func(options ...backend.BackendOption) test.TestBackend {
		mr := miniredis.RunT(t)

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

		b, err := NewRedisBackend(client, WithBackendOptions(options...))
		if err != nil {
			panic(err)
		}

		return b
	}
}
