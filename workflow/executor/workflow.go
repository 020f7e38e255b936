package executor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/args"
	"github.com/cschleiden/loanflow/internal/contextvalue"
	"github.com/cschleiden/loanflow/internal/sync"
	"github.com/cschleiden/loanflow/internal/workflowerrors"
)

// workflow runs a registered workflow function as the root coroutine of its own scheduler.
type workflow struct {
	s      *sync.Scheduler
	fn     reflect.Value
	result payload.Payload
	err    error
}

func newWorkflow(fn reflect.Value) *workflow {
	return &workflow{
		s:  sync.NewScheduler(),
		fn: fn,
	}
}

// Execute starts the workflow with the given inputs and runs it until it blocks or finishes.
func (w *workflow) Execute(ctx sync.Context, inputs []payload.Payload) error {
	w.s.NewCoroutine(ctx, func(ctx sync.Context) error {
		cv := contextvalue.Converter(ctx)

		in, withContext, err := args.InputsToArgs(cv, w.fn, inputs)
		if err != nil {
			return fmt.Errorf("converting workflow inputs: %w", err)
		}

		if !withContext {
			return errors.New("workflow must accept context as first argument")
		}

		in[0] = reflect.ValueOf(ctx)

		defer func() {
			if r := recover(); r != nil {
				w.err = workflowerrors.NewPanicError(fmt.Sprintf("panic in workflow: %v", r))
			}
		}()

		return w.collect(cv, w.fn.Call(in))
	})

	return w.s.Execute()
}

// collect stores the (error) or (result, error) return values of the workflow function.
func (w *workflow) collect(cv converter.Converter, out []reflect.Value) error {
	if len(out) == 0 || len(out) > 2 {
		return errors.New("workflow has to return either (error) or (result, error)")
	}

	var value any
	if len(out) == 2 {
		value = out[0].Interface()
	}

	result, err := cv.To(value)
	if err != nil {
		return fmt.Errorf("converting workflow result: %w", err)
	}

	w.result = result

	last := out[len(out)-1]
	if last.IsNil() {
		return nil
	}

	wfErr, ok := last.Interface().(error)
	if !ok {
		return fmt.Errorf("workflow error result does not satisfy error interface (%T): %v", last, last)
	}

	w.err = wfErr

	return nil
}

// Continue resumes the workflow after state it may be waiting on has changed
func (w *workflow) Continue() error {
	return w.s.Execute()
}

func (w *workflow) Completed() bool {
	return w.s.RunningCoroutines() == 0
}

func (w *workflow) Result() payload.Payload {
	return w.result
}

// Error returns the error of a finished workflow, can be nil
func (w *workflow) Error() error {
	return w.err
}

// Close exits all coroutines of the workflow.
func (w *workflow) Close() {
	w.s.Exit()
}
