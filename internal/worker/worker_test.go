package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testTask struct {
	ID   int
	Data string
}

type testResult struct {
	Output string
}

type mockTaskWorker struct {
	mock.Mock
}

func (m *mockTaskWorker) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockTaskWorker) Get(ctx context.Context) (*testTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*testTask), args.Error(1)
}

func (m *mockTaskWorker) Extend(ctx context.Context, task *testTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *mockTaskWorker) Execute(ctx context.Context, task *testTask) (*testResult, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*testResult), args.Error(1)
}

func (m *mockTaskWorker) Complete(ctx context.Context, result *testResult, task *testTask) error {
	args := m.Called(ctx, result, task)
	return args.Error(0)
}

func TestWorker_Start(t *testing.T) {
	t.Run("successful start", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{
			Pollers:          2,
			MaxParallelTasks: 5,
			PollingInterval:  time.Millisecond,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		tw.On("Start", ctx).Return(nil)
		tw.On("Get", mock.Anything).Return(nil, nil)

		require.NoError(t, worker.Start(ctx))

		time.Sleep(10 * time.Millisecond)

		cancel()

		require.NoError(t, worker.WaitForCompletion())

		tw.AssertExpectations(t)
	})

	t.Run("task worker start error", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{Pollers: 1})

		ctx := context.Background()
		tw.On("Start", ctx).Return(errors.New("start error"))

		err := worker.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "starting task worker")
		assert.Contains(t, err.Error(), "start error")
	})
}

func TestWorker_Poll(t *testing.T) {
	tests := []struct {
		name    string
		task    *testTask
		err     error
		want    *testTask
		wantErr bool
	}{
		{
			name: "returns task",
			task: &testTask{ID: 1, Data: "test"},
			want: &testTask{ID: 1, Data: "test"},
		},
		{
			name: "timeout returns no task",
			err:  context.DeadlineExceeded,
		},
		{
			name:    "get error",
			err:     errors.New("get error"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := &mockTaskWorker{}
			worker := NewWorker(slog.Default(), tw, &WorkerOptions{Pollers: 1})

			if tt.task != nil {
				tw.On("Get", mock.Anything).Return(tt.task, nil)
			} else {
				tw.On("Get", mock.Anything).Return(nil, tt.err)
			}

			task, err := worker.poll(context.Background(), time.Second)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tt.want, task)
			tw.AssertExpectations(t)
		})
	}
}

func TestWorker_Handle(t *testing.T) {
	t.Run("executes and completes", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{Pollers: 1})

		task := &testTask{ID: 1}
		result := &testResult{Output: "success"}

		tw.On("Execute", mock.Anything, task).Return(result, nil)
		tw.On("Complete", mock.Anything, result, task).Return(nil)

		require.NoError(t, worker.handle(context.Background(), task))

		tw.AssertExpectations(t)
	})

	t.Run("heartbeats while executing", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{
			Pollers:           1,
			HeartbeatInterval: 5 * time.Millisecond,
		})

		task := &testTask{ID: 1}
		result := &testResult{Output: "success"}

		var extended atomic.Int32
		tw.On("Extend", mock.Anything, task).Run(func(mock.Arguments) { extended.Add(1) }).Return(nil)
		tw.On("Execute", mock.Anything, task).Run(func(mock.Arguments) {
			time.Sleep(30 * time.Millisecond)
		}).Return(result, nil)
		tw.On("Complete", mock.Anything, result, task).Return(nil)

		require.NoError(t, worker.handle(context.Background(), task))
		require.Positive(t, extended.Load())
	})

	t.Run("execution error skips completion", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{Pollers: 1})

		task := &testTask{ID: 1}
		tw.On("Execute", mock.Anything, task).Return(nil, errors.New("execution error"))

		err := worker.handle(context.Background(), task)
		require.ErrorContains(t, err, "executing task: execution error")

		tw.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost lock aborts processing", func(t *testing.T) {
		tw := &mockTaskWorker{}
		worker := NewWorker(slog.Default(), tw, &WorkerOptions{
			Pollers:           1,
			HeartbeatInterval: 2 * time.Millisecond,
		})

		task := &testTask{ID: 1}

		tw.On("Extend", mock.Anything, task).Return(errors.New("lock lost"))
		tw.On("Execute", mock.Anything, task).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Return(&testResult{}, nil)

		err := worker.handle(context.Background(), task)
		require.ErrorIs(t, err, context.Canceled)

		tw.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWorker_ProcessesPolledTasks(t *testing.T) {
	tw := &mockTaskWorker{}
	worker := NewWorker(slog.Default(), tw, &WorkerOptions{
		Pollers:          1,
		MaxParallelTasks: 1,
		PollingInterval:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := &testTask{ID: 1}
	result := &testResult{Output: "done"}

	completed := make(chan struct{})

	tw.On("Start", ctx).Return(nil)
	tw.On("Get", mock.Anything).Return(task, nil).Once()
	tw.On("Get", mock.Anything).Return(nil, nil)
	tw.On("Execute", mock.Anything, task).Return(result, nil)
	tw.On("Complete", mock.Anything, result, task).Run(func(mock.Arguments) { close(completed) }).Return(nil)

	require.NoError(t, worker.Start(ctx))

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("task was not completed")
	}

	cancel()
	require.NoError(t, worker.WaitForCompletion())
}
