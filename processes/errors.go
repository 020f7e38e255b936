package processes

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidTask = errors.New("invalid task")

// NotFoundError is returned when a process or task does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Kind() string {
	return "NotFound"
}

func (e *NotFoundError) Permanent() bool {
	return true
}

type InvalidTaskError struct {
	Reason string
}

func (e *InvalidTaskError) Error() string {
	return fmt.Sprintf("invalid task: %s", e.Reason)
}

func (e *InvalidTaskError) Is(target error) bool {
	return target == ErrInvalidTask
}

func (e *InvalidTaskError) Kind() string {
	return "InvalidTask"
}

func (e *InvalidTaskError) Permanent() bool {
	return true
}

// StatusError is returned for unexpected responses of the service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}

	return false
}

// IsTemporary classifies errors returned by a Service. Missing entities, invalid input and client
// errors are permanent, everything else, e.g. transport failures, is assumed to be temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false
	}

	if errors.Is(err, ErrInvalidTask) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	return true
}
