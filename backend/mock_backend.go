package backend

import (
	"context"

	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/core"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace"
)

// MockBackend is a testify mock of Backend for use in tests of backend consumers
type MockBackend struct {
	mock.Mock
}

var _ Backend = (*MockBackend)(nil)

func (_m *MockBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	return _m.Called(ctx, instance, event).Error(0)
}

func (_m *MockBackend) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, cancelEvent *history.Event) error {
	return _m.Called(ctx, instance, cancelEvent).Error(0)
}

func (_m *MockBackend) GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	ret := _m.Called(ctx, instance)
	return ret.Get(0).(core.WorkflowInstanceState), ret.Error(1)
}

func (_m *MockBackend) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	ret := _m.Called(ctx, instance, lastSequenceID)

	var r0 []*history.Event
	if rf, ok := ret.Get(0).([]*history.Event); ok {
		r0 = rf
	}

	return r0, ret.Error(1)
}

func (_m *MockBackend) GetLatestInstance(ctx context.Context, instanceID string) (*core.WorkflowInstance, error) {
	ret := _m.Called(ctx, instanceID)

	var r0 *core.WorkflowInstance
	if rf, ok := ret.Get(0).(*core.WorkflowInstance); ok {
		r0 = rf
	}

	return r0, ret.Error(1)
}

func (_m *MockBackend) SignalWorkflow(ctx context.Context, instanceID string, event *history.Event) error {
	return _m.Called(ctx, instanceID, event).Error(0)
}

func (_m *MockBackend) GetWorkflowTask(ctx context.Context) (*WorkflowTask, error) {
	ret := _m.Called(ctx)

	var r0 *WorkflowTask
	if rf, ok := ret.Get(0).(*WorkflowTask); ok {
		r0 = rf
	}

	return r0, ret.Error(1)
}

func (_m *MockBackend) ExtendWorkflowTask(ctx context.Context, task *WorkflowTask) error {
	return _m.Called(ctx, task).Error(0)
}

func (_m *MockBackend) CompleteWorkflowTask(
	ctx context.Context, task *WorkflowTask, state core.WorkflowInstanceState,
	executedEvents, activityEvents []*history.Event,
) error {
	return _m.Called(ctx, task, state, executedEvents, activityEvents).Error(0)
}

func (_m *MockBackend) GetActivityTask(ctx context.Context) (*ActivityTask, error) {
	ret := _m.Called(ctx)

	var r0 *ActivityTask
	if rf, ok := ret.Get(0).(*ActivityTask); ok {
		r0 = rf
	}

	return r0, ret.Error(1)
}

func (_m *MockBackend) ExtendActivityTask(ctx context.Context, task *ActivityTask) error {
	return _m.Called(ctx, task).Error(0)
}

func (_m *MockBackend) CompleteActivityTask(ctx context.Context, task *ActivityTask, result *history.Event) error {
	return _m.Called(ctx, task, result).Error(0)
}

func (_m *MockBackend) GetStats(ctx context.Context) (*Stats, error) {
	ret := _m.Called(ctx)

	var r0 *Stats
	if rf, ok := ret.Get(0).(*Stats); ok {
		r0 = rf
	}

	return r0, ret.Error(1)
}

func (_m *MockBackend) Tracer() trace.Tracer {
	return _m.Called().Get(0).(trace.Tracer)
}

func (_m *MockBackend) Metrics() metrics.Client {
	return _m.Called().Get(0).(metrics.Client)
}

func (_m *MockBackend) Options() *Options {
	return _m.Called().Get(0).(*Options)
}

func (_m *MockBackend) Close() error {
	return _m.Called().Error(0)
}
