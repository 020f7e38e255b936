package args

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/backend/payload"
	"github.com/cschleiden/loanflow/internal/sync"
)

func ArgsToInputs(c converter.Converter, args ...any) ([]payload.Payload, error) {
	inputs := make([]payload.Payload, 0, len(args))

	for _, arg := range args {
		input, err := c.To(arg)
		if err != nil {
			return nil, fmt.Errorf("converting args to inputs: %w", err)
		}
		inputs = append(inputs, input)
	}

	return inputs, nil
}

// InputsToArgs decodes the given inputs into argument values for fn. If the first parameter of fn
// is a context, addContext is true and the first returned value is left empty for the caller to fill.
func InputsToArgs(c converter.Converter, fn reflect.Value, inputs []payload.Payload) ([]reflect.Value, bool, error) {
	fnT := fn.Type()

	numArgs := fnT.NumIn()
	addContext := numArgs > 0 && IsContext(fnT.In(0))

	expected := numArgs
	if addContext {
		expected--
	}

	if len(inputs) != expected {
		return nil, addContext, fmt.Errorf("mismatched argument count: expected %d, got %d", expected, len(inputs))
	}

	args := make([]reflect.Value, numArgs)

	input := 0
	for i := 0; i < numArgs; i++ {
		if i == 0 && addContext {
			continue
		}

		arg := reflect.New(fnT.In(i)).Interface()
		if err := c.From(inputs[input], arg); err != nil {
			return nil, addContext, fmt.Errorf("converting inputs: %w", err)
		}

		args[i] = reflect.ValueOf(arg).Elem()

		input++
	}

	return args, addContext, nil
}

// ParamsMatch verifies that the given arguments can be passed to fn, ignoring a leading context parameter.
func ParamsMatch(fn any, args ...any) error {
	fnT := reflect.TypeOf(fn)
	if fnT == nil || fnT.Kind() != reflect.Func {
		return errors.New("not a function")
	}

	skip := 0
	if fnT.NumIn() > 0 && IsContext(fnT.In(0)) {
		skip = 1
	}

	if fnT.NumIn()-skip != len(args) {
		return fmt.Errorf("mismatched argument count: expected %d, got %d", fnT.NumIn()-skip, len(args))
	}

	for i, arg := range args {
		paramT := fnT.In(i + skip)

		if paramT.Kind() == reflect.Interface {
			continue
		}

		argT := reflect.TypeOf(arg)
		if argT != nil && !argT.AssignableTo(paramT) {
			return fmt.Errorf("mismatched argument type: expected %v, got %v", paramT, argT)
		}
	}

	return nil
}

// ReturnTypeMatch verifies that fn returns a value assignable to TResult as its first result. Functions
// returning only an error always match.
func ReturnTypeMatch[TResult any](fn any) error {
	fnT := reflect.TypeOf(fn)
	if fnT == nil || fnT.Kind() != reflect.Func {
		return errors.New("not a function")
	}

	if fnT.NumOut() < 2 {
		return nil
	}

	resultT := reflect.TypeOf((*TResult)(nil)).Elem()
	if resultT.Kind() == reflect.Interface {
		return nil
	}

	if !fnT.Out(0).AssignableTo(resultT) {
		return fmt.Errorf("function must return %v, got %v", resultT, fnT.Out(0))
	}

	return nil
}

var (
	syncContextT = reflect.TypeOf((*sync.Context)(nil)).Elem()
	contextT     = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// IsContext returns true for both the workflow context type and context.Context
func IsContext(t reflect.Type) bool {
	return t == syncContextT || t == contextT
}

// IsWorkflowContext returns true for the workflow context type
func IsWorkflowContext(t reflect.Type) bool {
	return t == syncContextT
}
