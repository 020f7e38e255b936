package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type TaskWorker[Task, Result any] interface {
	Start(context.Context) error
	Get(context.Context) (*Task, error)
	Extend(context.Context, *Task) error
	Execute(context.Context, *Task) (*Result, error)
	Complete(context.Context, *Result, *Task) error
}

type Worker[Task, TaskResult any] struct {
	options *WorkerOptions

	tw TaskWorker[Task, TaskResult]

	taskQueue *workQueue[Task]

	logger *slog.Logger

	pollersWg sync.WaitGroup

	dispatcherDone chan struct{}
}

type WorkerOptions struct {
	Pollers int

	MaxParallelTasks int

	// HeartbeatInterval is the interval for extending the lock of a task while it is processed,
	// 0 disables heartbeats
	HeartbeatInterval time.Duration

	PollingInterval time.Duration
}

func NewWorker[Task, TaskResult any](
	logger *slog.Logger, tw TaskWorker[Task, TaskResult], options *WorkerOptions,
) *Worker[Task, TaskResult] {
	return &Worker[Task, TaskResult]{
		tw:             tw,
		options:        options,
		taskQueue:      newWorkQueue[Task](options.MaxParallelTasks),
		logger:         logger,
		dispatcherDone: make(chan struct{}, 1),
	}
}

func (w *Worker[Task, TaskResult]) Start(ctx context.Context) error {
	if err := w.tw.Start(ctx); err != nil {
		return fmt.Errorf("starting task worker: %w", err)
	}

	w.pollersWg.Add(w.options.Pollers)

	for i := 0; i < w.options.Pollers; i++ {
		go w.poller(ctx)
	}

	go w.dispatcher()

	return nil
}

// WaitForCompletion waits for all pollers to stop and all in-flight tasks to be processed. Pollers
// stop when the context passed to Start is canceled.
func (w *Worker[Task, TaskResult]) WaitForCompletion() error {
	// Wait for task pollers to finish
	w.pollersWg.Wait()

	// Wait for tasks to finish
	close(w.taskQueue.tasks)
	<-w.dispatcherDone

	return nil
}

func (w *Worker[Task, TaskResult]) poller(ctx context.Context) {
	defer w.pollersWg.Done()

	var tick <-chan time.Time
	if w.options.PollingInterval > 0 {
		ticker := time.NewTicker(w.options.PollingInterval)
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		// A slot is reserved before polling so a fetched task always has capacity
		if err := w.taskQueue.reserve(ctx); err != nil {
			return
		}

		handedOff, stop := w.pollOnce(ctx)
		if stop {
			return
		}

		if handedOff {
			continue
		}

		w.taskQueue.release()

		if !w.idle(ctx, tick) {
			return
		}
	}
}

// pollOnce fetches at most one task and hands it to the dispatcher.
func (w *Worker[Task, TaskResult]) pollOnce(ctx context.Context) (handedOff bool, stop bool) {
	task, err := w.poll(ctx, 30*time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "error polling task", "error", err)
		}

		return false, false
	}

	if task == nil {
		return false, false
	}

	if err := w.taskQueue.add(ctx, task); err != nil {
		// The task's lock expires and it is picked up again
		w.taskQueue.release()
		return false, true
	}

	return true, false
}

// idle waits for the next polling tick and reports whether polling should go on.
func (w *Worker[Task, TaskResult]) idle(ctx context.Context, tick <-chan time.Time) bool {
	if tick == nil {
		return ctx.Err() == nil
	}

	select {
	case <-tick:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker[Task, TaskResult]) dispatcher() {
	var wg sync.WaitGroup

	for t := range w.taskQueue.tasks {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer w.taskQueue.release()

			// Tasks outlive the poller context so in-flight work completes on shutdown
			if err := w.handle(context.Background(), t); err != nil {
				w.logger.Error("error handling task", "error", err)
			}
		}()
	}

	wg.Wait()

	w.dispatcherDone <- struct{}{}
}

func (w *Worker[Task, TaskResult]) handle(ctx context.Context, t *Task) error {
	if w.options.HeartbeatInterval > 0 {
		// Start heartbeat while processing task, losing the lock aborts processing
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()

		go w.heartbeatTask(ctx, t, cancel)
	}

	result, err := w.tw.Execute(ctx, t)
	if err != nil {
		return fmt.Errorf("executing task: %w", err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("task aborted: %w", ctx.Err())
	}

	return w.tw.Complete(ctx, result, t)
}

func (w *Worker[Task, TaskResult]) heartbeatTask(ctx context.Context, task *Task, abort context.CancelFunc) {
	t := time.NewTicker(w.options.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.tw.Extend(ctx, task); err != nil {
				if ctx.Err() != nil {
					return
				}

				w.logger.ErrorContext(ctx, "could not heartbeat task, aborting", "error", err)
				abort()
				return
			}
		}
	}
}

func (w *Worker[Task, TaskResult]) poll(ctx context.Context, timeout time.Duration) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task, err := w.tw.Get(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}

	return task, err
}
