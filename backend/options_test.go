package backend

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithWorkflowLockTimeout(t *testing.T) {
	timeout := 5 * time.Minute
	option := WithWorkflowLockTimeout(timeout)

	opts := ApplyOptions(option)

	assert.Equal(t, timeout, opts.WorkflowLockTimeout)
}

func TestWithActivityLockTimeout(t *testing.T) {
	timeout := 3 * time.Minute
	option := WithActivityLockTimeout(timeout)

	opts := ApplyOptions(option)

	assert.Equal(t, timeout, opts.ActivityLockTimeout)
}

func TestDefaultValues(t *testing.T) {
	opts := ApplyOptions()

	assert.Equal(t, time.Minute, opts.WorkflowLockTimeout)
	assert.Equal(t, time.Minute*2, opts.ActivityLockTimeout)
	assert.Equal(t, int64(10_000), opts.MaxHistorySize)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.TracerProvider)
	assert.NotNil(t, opts.Converter)
}

func TestNilOptionsFallBackToDefaults(t *testing.T) {
	opts := ApplyOptions(
		WithLogger(nil),
		WithMetrics(nil),
		WithTracerProvider(nil),
		WithConverter(nil),
	)

	assert.Same(t, slog.Default(), opts.Logger)
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.TracerProvider)
	assert.NotNil(t, opts.Converter)
}

func TestIntegrationWithOtherOptions(t *testing.T) {
	workflowTimeout := 30 * time.Second
	activityTimeout := 45 * time.Second
	maxHistorySize := int64(5000)

	opts := ApplyOptions(
		WithWorkflowLockTimeout(workflowTimeout),
		WithActivityLockTimeout(activityTimeout),
		WithMaxHistorySize(maxHistorySize),
	)

	assert.Equal(t, workflowTimeout, opts.WorkflowLockTimeout)
	assert.Equal(t, activityTimeout, opts.ActivityLockTimeout)
	assert.Equal(t, maxHistorySize, opts.MaxHistorySize)
}
