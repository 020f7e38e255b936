package worker

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/loanflow/backend"
	internal "github.com/cschleiden/loanflow/internal/worker"
	"github.com/cschleiden/loanflow/registry"
	"github.com/cschleiden/loanflow/workflow"
	"go.uber.org/multierr"
)

type Worker struct {
	backend backend.Backend

	registry *registry.Registry

	workers []worker
}

type worker interface {
	Start(context.Context) error
	WaitForCompletion() error
}

// New creates a worker that processes workflows and activities.
func New(backend backend.Backend, options *Options) *Worker {
	if options == nil {
		options = &DefaultOptions
	}

	registry := registry.New()

	return &Worker{
		backend:  backend,
		registry: registry,
		workers: []worker{
			newWorkflowWorker(backend, registry, &options.WorkflowWorkerOptions),
			newActivityWorker(backend, registry, &options.ActivityWorkerOptions),
		},
	}
}

// NewWorkflowWorker creates a worker that only processes workflows.
func NewWorkflowWorker(backend backend.Backend, options *WorkflowWorkerOptions) *Worker {
	registry := registry.New()

	return &Worker{
		backend:  backend,
		registry: registry,
		workers:  []worker{newWorkflowWorker(backend, registry, options)},
	}
}

// NewActivityWorker creates a worker that only processes activities.
func NewActivityWorker(backend backend.Backend, options *ActivityWorkerOptions) *Worker {
	registry := registry.New()

	return &Worker{
		backend:  backend,
		registry: registry,
		workers:  []worker{newActivityWorker(backend, registry, options)},
	}
}

func newActivityWorker(backend backend.Backend, registry *registry.Registry, options *ActivityWorkerOptions) worker {
	if options == nil {
		options = &DefaultOptions.ActivityWorkerOptions
	}

	return internal.NewActivityWorker(backend, registry, clock.New(), internal.WorkerOptions{
		Pollers:           options.ActivityPollers,
		PollingInterval:   options.ActivityPollingInterval,
		MaxParallelTasks:  options.MaxParallelActivityTasks,
		HeartbeatInterval: options.ActivityHeartbeatInterval,
	})
}

func newWorkflowWorker(backend backend.Backend, registry *registry.Registry, options *WorkflowWorkerOptions) worker {
	if options == nil {
		options = &DefaultOptions.WorkflowWorkerOptions
	}

	return internal.NewWorkflowWorker(backend, registry, internal.WorkflowWorkerOptions{
		WorkerOptions: internal.WorkerOptions{
			Pollers:           options.WorkflowPollers,
			PollingInterval:   options.WorkflowPollingInterval,
			MaxParallelTasks:  options.MaxParallelWorkflowTasks,
			HeartbeatInterval: options.WorkflowHeartbeatInterval,
		},
		WorkflowExecutorCache:     options.WorkflowExecutorCache,
		WorkflowExecutorCacheSize: options.WorkflowExecutorCacheSize,
		WorkflowExecutorCacheTTL:  options.WorkflowExecutorCacheTTL,
	})
}

// Start starts the worker.
//
// To stop the worker, cancel the context passed to Start. To wait for completion of the active
// tasks, call `WaitForCompletion`.
func (w *Worker) Start(ctx context.Context) error {
	for _, worker := range w.workers {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("starting worker: %w", err)
		}
	}

	return nil
}

// WaitForCompletion waits for all active tasks to complete.
func (w *Worker) WaitForCompletion() error {
	var err error
	for _, worker := range w.workers {
		err = multierr.Append(err, worker.WaitForCompletion())
	}

	if err != nil {
		return fmt.Errorf("waiting for worker completion: %w", err)
	}

	return nil
}

// RegisterWorkflow registers a workflow with the worker's registry.
func (w *Worker) RegisterWorkflow(wf workflow.Workflow, opts ...registry.RegisterOption) error {
	return w.registry.RegisterWorkflow(wf, opts...)
}

// RegisterActivity registers an activity with the worker's registry. a is either an activity
// function or a pointer to a struct whose exported methods are activities.
func (w *Worker) RegisterActivity(a workflow.Activity, opts ...registry.RegisterOption) error {
	return w.registry.RegisterActivity(a, opts...)
}
