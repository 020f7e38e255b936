package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/core"
	a "github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/fn"
	"github.com/cschleiden/loanflow/internal/log"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrWorkflowCanceled = errors.New("workflow canceled")
	ErrWorkflowTimeout  = errors.New("workflow did not finish in specified timeout")
)

type WorkflowInstanceOptions struct {
	// InstanceID identifies the business case the instance is started for. At most one execution
	// per instance id can be active.
	InstanceID string
}

type Client struct {
	backend backend.Backend
	clock   clock.Clock
}

func New(backend backend.Backend) *Client {
	return &Client{
		backend: backend,
		clock:   clock.New(),
	}
}

// CreateWorkflowInstance creates a new workflow instance of the given workflow. wf is either the
// workflow function or its registered name.
func (c *Client) CreateWorkflowInstance(ctx context.Context, options WorkflowInstanceOptions, wf workflow.Workflow, args ...any) (*workflow.Instance, error) {
	name, err := workflowName(wf, args)
	if err != nil {
		return nil, err
	}

	inputs, err := a.ArgsToInputs(c.backend.Options().Converter, args...)
	if err != nil {
		return nil, fmt.Errorf("converting arguments: %w", err)
	}

	instanceID := options.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	wfi := core.NewWorkflowInstance(instanceID, uuid.NewString())

	ctx, span := c.span(ctx, "CreateWorkflowInstance: "+name, instanceID, attribute.String(tracing.WorkflowName, name))
	defer span.End()

	started := history.NewPendingEvent(c.clock.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
		Name:   name,
		Inputs: inputs,
	})

	if err := c.backend.CreateWorkflowInstance(ctx, wfi, started); err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("creating workflow instance: %w", err))
	}

	c.backend.Options().Logger.Debug("Created workflow instance",
		log.InstanceIDKey, wfi.InstanceID,
		log.ExecutionIDKey, wfi.ExecutionID,
		log.WorkflowNameKey, name,
	)

	c.backend.Metrics().Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{metrickeys.WorkflowName: name}, 1)

	return wfi, nil
}

// workflowName resolves the registered name of wf. Arguments are only checked when the function
// itself is given.
func workflowName(wf workflow.Workflow, args []any) (string, error) {
	if name, ok := wf.(string); ok {
		return name, nil
	}

	if err := a.ParamsMatch(wf, args...); err != nil {
		return "", err
	}

	return fn.Name(wf), nil
}

func (c *Client) span(ctx context.Context, name, instanceID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(tracing.WorkflowInstanceID, instanceID))

	return c.backend.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// CancelWorkflowInstance cancels a running workflow instance. Canceling a finished instance has no
// effect.
func (c *Client) CancelWorkflowInstance(ctx context.Context, instance *workflow.Instance) error {
	ctx, span := c.span(ctx, "CancelWorkflowInstance", instance.InstanceID)
	defer span.End()

	err := c.backend.CancelWorkflowInstance(ctx, instance, history.NewWorkflowCancellationEvent(c.clock.Now()))

	return tracing.WithSpanError(span, err)
}

// GetLatestInstance returns the most recent execution started for the given instance id
func (c *Client) GetLatestInstance(ctx context.Context, instanceID string) (*workflow.Instance, error) {
	return c.backend.GetLatestInstance(ctx, instanceID)
}

// SignalWorkflow signals the active execution of the given instance id. Returns
// backend.ErrInstanceNotFound if there is none.
func (c *Client) SignalWorkflow(ctx context.Context, instanceID string, name string, arg any) error {
	ctx, span := c.span(ctx, "SignalWorkflow", instanceID, attribute.String(tracing.SignalName, name))
	defer span.End()

	input, err := c.backend.Options().Converter.To(arg)
	if err != nil {
		return fmt.Errorf("converting arguments: %w", err)
	}

	event := history.NewPendingEvent(c.clock.Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{
		Name: name,
		Arg:  input,
	})

	if err := c.backend.SignalWorkflow(ctx, instanceID, event); err != nil {
		return tracing.WithSpanError(span, err)
	}

	c.backend.Options().Logger.Debug("Signaled workflow instance", log.InstanceIDKey, instanceID, log.SignalNameKey, name)

	return nil
}

// GetWorkflowInstanceState returns the state of the given workflow instance
func (c *Client) GetWorkflowInstanceState(ctx context.Context, instance *workflow.Instance) (core.WorkflowInstanceState, error) {
	return c.backend.GetWorkflowInstanceState(ctx, instance)
}

// WaitForWorkflowInstance waits for the given workflow instance to finish or until the given timeout has expired.
func (c *Client) WaitForWorkflowInstance(ctx context.Context, instance *workflow.Instance, timeout time.Duration) error {
	if timeout == 0 {
		timeout = time.Second * 20
	}

	ctx, span := c.span(ctx, "WaitForWorkflowInstance", instance.InstanceID)
	defer span.End()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 1,
		MaxInterval:         time.Second * 1,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTickerWithTimer(backoff.WithContext(b, ctx), nil)
	defer ticker.Stop()

	for range ticker.C {
		s, err := c.backend.GetWorkflowInstanceState(ctx, instance)
		if err != nil {
			return fmt.Errorf("getting workflow state: %w", err)
		}

		if s == core.WorkflowInstanceStateFinished {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return ErrWorkflowTimeout
}

// GetWorkflowResult gets the workflow result for the given workflow instance. It first waits for the
// workflow to finish or until the given timeout has expired.
//
// A failed instance returns its recorded error as *workflow.Error, a canceled instance additionally
// matches ErrWorkflowCanceled.
func GetWorkflowResult[T any](ctx context.Context, c *Client, instance *workflow.Instance, timeout time.Duration) (T, error) {
	var r T

	ctx, span := c.span(ctx, "GetWorkflowResult", instance.InstanceID)
	defer span.End()

	if err := c.WaitForWorkflowInstance(ctx, instance, timeout); err != nil {
		return r, fmt.Errorf("workflow did not finish in time: %w", err)
	}

	h, err := c.backend.GetWorkflowInstanceHistory(ctx, instance, nil)
	if err != nil {
		return r, fmt.Errorf("getting workflow history: %w", err)
	}

	finished, canceled := outcome(h)
	if finished == nil {
		return r, errors.New("workflow finished, but could not find result event")
	}

	if finished.Error != nil {
		err := workflowerrors.ToError(finished.Error)
		if canceled {
			err = fmt.Errorf("%w: %w", ErrWorkflowCanceled, err)
		}

		return r, err
	}

	if err := c.backend.Options().Converter.From(finished.Result, &r); err != nil {
		return r, fmt.Errorf("converting result: %w", err)
	}

	return r, nil
}

// outcome finds the completion of an execution in its history and whether it was canceled before.
func outcome(h []*history.Event) (*history.ExecutionCompletedAttributes, bool) {
	canceled := false

	for _, event := range h {
		switch attrs := event.Attributes.(type) {
		case *history.ExecutionCanceledAttributes:
			canceled = true
		case *history.ExecutionCompletedAttributes:
			return attrs, canceled
		}
	}

	return nil, canceled
}

// GetStats returns backend stats
func (c *Client) GetStats(ctx context.Context) (*backend.Stats, error) {
	return c.backend.GetStats(ctx)
}
