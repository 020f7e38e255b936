package test

import (
	"github.com/cschleiden/loanflow/backend"
)

// TestBackend is a backend under test
type TestBackend interface {
	backend.Backend
}

// Setup creates a fresh backend with the given options
type Setup func(options ...backend.BackendOption) TestBackend

// Teardown releases a backend created by Setup
type Teardown func(b TestBackend)
