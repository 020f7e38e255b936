package workflowerrors

import (
	"encoding/json"
	"errors"
)

type Error struct {
	// Type is the Go type name of the original error, empty for plain errors
	Type string `json:"type,omitempty"`

	// Kind is a stable, user defined classification of the error, e.g. "UnsupportedCurrency"
	Kind string `json:"kind,omitempty"`

	Message string `json:"message,omitempty"`

	// Activity is the name of the activity that produced this error, if any
	Activity string `json:"activity,omitempty"`

	Permanent  bool   `json:"permanent,omitempty"`
	Cause      error  `json:"cause,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

func (we *Error) UnmarshalJSON(b []byte) error {
	type Alias Error
	a := &struct {
		Cause *Error `json:"cause,omitempty"`
		*Alias
	}{}

	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}

	*we = *(*Error)(a.Alias)
	if a.Cause != nil {
		we.Cause = a.Cause
	}

	return nil
}

func (we *Error) Error() string {
	return we.Message
}

func (we *Error) Unwrap() error {
	if we == nil || we.Cause == nil || we.Cause == (*Error)(nil) {
		return nil
	}

	return we.Cause
}

func (we *Error) Stack() string {
	return we.Stacktrace
}

var _ error = (*Error)(nil)

type kinder interface {
	Kind() string
}

type permanenter interface {
	Permanent() bool
}

// FromError wraps the given error into a workflow error which can be persisted and restored
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	// If this is already a workflow error, just return it, do not wrap again
	if e, ok := err.(*Error); ok {
		return e
	}

	e := &Error{
		Type:    getErrorType(err),
		Message: err.Error(),
	}

	if k, ok := err.(kinder); ok {
		e.Kind = k.Kind()
	}

	if p, ok := err.(permanenter); ok {
		e.Permanent = p.Permanent()
	}

	if stackTracer, ok := err.(interface{ Stack() string }); ok {
		e.Stacktrace = stackTracer.Stack()
	}

	if cause := errors.Unwrap(err); cause != nil {
		ce := FromError(cause)
		e.Cause = ce

		// A permanent cause makes the whole chain permanent
		e.Permanent = e.Permanent || ce.Permanent
	}

	return e
}

// ToError attempts to convert the given workflow error into a regular error. It will create concrete errors for known error types
// and maintain the Error for unknown ones
func ToError(err *Error) error {
	if err == nil {
		return nil
	}

	e := *err

	switch err.Type {
	case getErrorType(&PanicError{}):
		return &PanicError{message: e.Message, stacktrace: e.Stacktrace}

	default:
		// Keep *Error
		return &e
	}
}

func NewPermanentError(err error) *Error {
	e := *FromError(err)
	e.Permanent = true
	return &e
}

// CanRetry returns true if the given error is retryable
func CanRetry(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return !e.Permanent
	}

	var p permanenter
	if errors.As(err, &p) {
		return !p.Permanent()
	}

	// Retry errors by default
	return true
}

// HasKind returns true if the given error or any of its causes carries the given kind.
func HasKind(err error, kind string) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Kind == kind {
				return true
			}
		case kinder:
			if e.Kind() == kind {
				return true
			}
		}

		err = errors.Unwrap(err)
	}

	return false
}
