package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkQueue(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T)
	}{
		{
			name: "unlimited parallelism has no slots",
			f: func(t *testing.T) {
				wq := newWorkQueue[testTask](0)
				require.Nil(t, wq.slots)
				require.NoError(t, wq.reserve(context.Background()))

				// No-op without slots
				wq.release()
			},
		},
		{
			name: "reserve blocks when all slots are taken",
			f: func(t *testing.T) {
				wq := newWorkQueue[testTask](1)
				require.NoError(t, wq.reserve(context.Background()))

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				defer cancel()

				require.ErrorIs(t, wq.reserve(ctx), context.DeadlineExceeded)

				wq.release()
				require.NoError(t, wq.reserve(context.Background()))
			},
		},
		{
			name: "reserve fails for canceled context",
			f: func(t *testing.T) {
				wq := newWorkQueue[testTask](0)

				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				require.ErrorIs(t, wq.reserve(ctx), context.Canceled)
			},
		},
		{
			name: "add hands task to receiver",
			f: func(t *testing.T) {
				wq := newWorkQueue[testTask](1)
				task := &testTask{ID: 1}

				go func() {
					require.NoError(t, wq.add(context.Background(), task))
				}()

				require.Same(t, task, <-wq.tasks)
			},
		},
		{
			name: "add respects context",
			f: func(t *testing.T) {
				wq := newWorkQueue[testTask](1)

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				defer cancel()

				require.ErrorIs(t, wq.add(ctx, &testTask{}), context.DeadlineExceeded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.f)
	}
}
