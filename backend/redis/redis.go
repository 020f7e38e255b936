package redis

import (
	"context"
	"fmt"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/backend/redis/taskqueue"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var _ backend.Backend = (*redisBackend)(nil)

func NewRedisBackend(client redis.UniversalClient, opts ...RedisBackendOption) (*redisBackend, error) {
	// Default options
	options := &RedisOptions{
		Options: backend.ApplyOptions(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.WorkerName == "" {
		options.WorkerName = fmt.Sprintf("worker-%v", uuid.NewString())
	}

	k := newKeys(options.KeyPrefix)

	rb := &redisBackend{
		rdb:     client,
		options: options,
		keys:    k,

		workflowQueue: taskqueue.New(client, k.prefix, "workflows", options.WorkerName),
		activityQueue: taskqueue.New(client, k.prefix, "activities", options.WorkerName),
	}

	// Preload scripts here. Usually redis-go attempts to execute them first, and if redis doesn't know
	// them, loads them. This doesn't work when using (transactional) pipelines, so eagerly load them on startup.
	ctx := context.Background()
	for _, script := range taskqueue.Scripts() {
		if err := script.Load(ctx, client).Err(); err != nil {
			return nil, fmt.Errorf("loading redis script: %w", err)
		}
	}

	return rb, nil
}

type redisBackend struct {
	rdb     redis.UniversalClient
	options *RedisOptions
	keys    *keys

	workflowQueue *taskqueue.TaskQueue
	activityQueue *taskqueue.TaskQueue
}

func (rb *redisBackend) Metrics() metrics.Client {
	return rb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "redis"})
}

func (rb *redisBackend) Tracer() trace.Tracer {
	return tracing.Tracer(rb.options.TracerProvider)
}

func (rb *redisBackend) Options() *backend.Options {
	return &rb.options.Options
}

func (rb *redisBackend) Close() error {
	return rb.rdb.Close()
}
