package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	im "github.com/cschleiden/loanflow/internal/metrics"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/cschleiden/loanflow/registry"
	"github.com/cschleiden/loanflow/workflow/executor"
	"github.com/cschleiden/loanflow/workflow/executor/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WorkflowWorkerOptions struct {
	WorkerOptions

	WorkflowExecutorCache     executor.ExecutorCache
	WorkflowExecutorCacheSize int
	WorkflowExecutorCacheTTL  time.Duration
}

func NewWorkflowWorker(
	b backend.Backend,
	registry *registry.Registry,
	options WorkflowWorkerOptions,
) *Worker[backend.WorkflowTask, executor.ExecutionResult] {
	if options.WorkflowExecutorCache == nil {
		options.WorkflowExecutorCache = cache.NewExecutorCache(b.Metrics(), options.WorkflowExecutorCacheSize, options.WorkflowExecutorCacheTTL)
	}

	tw := &WorkflowTaskWorker{
		backend:  b,
		registry: registry,
		cache:    options.WorkflowExecutorCache,
		logger:   b.Options().Logger,
		tracer:   b.Tracer(),
		clock:    clock.New(),
	}

	return NewWorker(b.Options().Logger, tw, &options.WorkerOptions)
}

type WorkflowTaskWorker struct {
	backend  backend.Backend
	registry *registry.Registry
	cache    executor.ExecutorCache
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

func (wtw *WorkflowTaskWorker) Start(ctx context.Context) error {
	go wtw.cache.StartEviction(ctx)

	return nil
}

func (wtw *WorkflowTaskWorker) Get(ctx context.Context) (*backend.WorkflowTask, error) {
	return wtw.backend.GetWorkflowTask(ctx)
}

func (wtw *WorkflowTaskWorker) Extend(ctx context.Context, t *backend.WorkflowTask) error {
	return wtw.backend.ExtendWorkflowTask(ctx, t)
}

func (wtw *WorkflowTaskWorker) Complete(ctx context.Context, result *executor.ExecutionResult, t *backend.WorkflowTask) error {
	logger := wtw.taskLogger(t)

	state := result.State
	if state == core.WorkflowInstanceStateFinished || t.WorkflowInstanceState == core.WorkflowInstanceStateFinished {
		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			logger.ErrorContext(ctx, "could not evict workflow executor from cache", "error", err)
		}
	}

	if err := wtw.backend.CompleteWorkflowTask(ctx, t, state, result.Executed, result.ActivityEvents); err != nil {
		logger.ErrorContext(ctx, "could not complete workflow task", "error", err)

		// The cached executor is ahead of the persisted history now
		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			logger.ErrorContext(ctx, "could not evict workflow executor from cache", "error", err)
		}

		return fmt.Errorf("completing workflow task: %w", err)
	}

	if state == core.WorkflowInstanceStateFinished && t.WorkflowInstanceState != core.WorkflowInstanceStateFinished {
		wtw.backend.Metrics().Counter(metrickeys.WorkflowInstanceFinished, metrics.Tags{}, 1)
	}

	return nil
}

func (wtw *WorkflowTaskWorker) Execute(ctx context.Context, t *backend.WorkflowTask) (*executor.ExecutionResult, error) {
	// Record how long this task was in the queue
	if len(t.NewEvents) > 0 {
		firstEvent := t.NewEvents[0]
		timeInQueue := wtw.clock.Since(firstEvent.Timestamp)
		wtw.backend.Metrics().Distribution(metrickeys.WorkflowTaskDelay, metrics.Tags{}, float64(timeInQueue/time.Millisecond))
	}

	timer := im.NewTimer(wtw.backend.Metrics(), metrickeys.WorkflowTaskProcessed, metrics.Tags{})
	defer timer.Stop()

	ctx, span := wtw.tracer.Start(ctx, "WorkflowTaskExecution", trace.WithAttributes(
		attribute.String(tracing.WorkflowInstanceID, t.WorkflowInstance.InstanceID),
		attribute.String(tracing.WorkflowExecutionID, t.WorkflowInstance.ExecutionID),
		attribute.String(tracing.WorkflowTaskID, t.ID),
		attribute.Int(tracing.WorkflowTaskEvents, len(t.NewEvents)),
	))
	defer span.End()

	result, err := wtw.executeTask(ctx, t)
	if err != nil {
		// A cached executor might be out of sync with the persisted history, try once more from a
		// fresh executor that replays the full history
		wtw.taskLogger(t).WarnContext(ctx, "workflow task failed, retrying with new executor", "error", err)

		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			return nil, tracing.WithSpanError(span, fmt.Errorf("evicting workflow executor: %w", err))
		}

		result, err = wtw.executeTask(ctx, t)
	}

	return result, tracing.WithSpanError(span, err)
}

func (wtw *WorkflowTaskWorker) executeTask(ctx context.Context, t *backend.WorkflowTask) (*executor.ExecutionResult, error) {
	e, err := wtw.getExecutor(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("getting workflow task executor: %w", err)
	}

	result, err := e.ExecuteTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("executing workflow task: %w", err)
	}

	if result.State != core.WorkflowInstanceStateFinished {
		if err := wtw.cache.Store(ctx, t.WorkflowInstance, e); err != nil {
			return nil, fmt.Errorf("storing workflow executor in cache: %w", err)
		}
	}

	return result, nil
}

func (wtw *WorkflowTaskWorker) getExecutor(ctx context.Context, t *backend.WorkflowTask) (executor.WorkflowExecutor, error) {
	e, ok, err := wtw.cache.Get(ctx, t.WorkflowInstance)
	if err != nil {
		wtw.taskLogger(t).ErrorContext(ctx, "could not read workflow executor from cache", "error", err)
	}

	if !ok {
		opts := wtw.backend.Options()

		e, err = executor.NewExecutor(
			opts.Logger,
			wtw.registry,
			opts.Converter,
			wtw.backend,
			t.WorkflowInstance,
			wtw.clock,
			opts.MaxHistorySize,
		)
		if err != nil {
			return nil, fmt.Errorf("creating workflow task executor: %w", err)
		}
	}

	return e, nil
}

func (wtw *WorkflowTaskWorker) taskLogger(t *backend.WorkflowTask) *slog.Logger {
	return wtw.logger.With(
		log.TaskIDKey, t.ID,
		log.InstanceIDKey, t.WorkflowInstance.InstanceID,
		log.ExecutionIDKey, t.WorkflowInstance.ExecutionID,
		log.NewEventsKey, len(t.NewEvents),
	)
}
