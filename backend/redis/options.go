package redis

import (
	"github.com/cschleiden/loanflow/backend"
)

type RedisOptions struct {
	backend.Options

	// KeyPrefix is prepended to all keys written by the backend. Allows multiple backends to share a
	// redis database.
	KeyPrefix string

	// WorkerName identifies this backend as the owner of task leases. If not set, a random name is
	// generated.
	WorkerName string
}

type RedisBackendOption func(*RedisOptions)

func WithBackendOptions(opts ...backend.BackendOption) RedisBackendOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

func WithKeyPrefix(keyPrefix string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}

func WithWorkerName(workerName string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.WorkerName = workerName
	}
}
