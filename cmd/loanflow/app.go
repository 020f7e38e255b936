package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cschleiden/loanflow/backend"
	redisbackend "github.com/cschleiden/loanflow/backend/redis"
	"github.com/cschleiden/loanflow/backend/sqlite"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/internal/config"
	"github.com/cschleiden/loanflow/internal/telemetry"
	"github.com/cschleiden/loanflow/metrics/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// app holds everything the commands share
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *prometheus.Client
	backend backend.Backend
	client  *client.Client

	shutdownTracing telemetry.ShutdownFunc
}

func newApp(ctx context.Context, configDir string) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	tp, shutdownTracing, err := telemetry.NewTracerProvider(ctx, telemetry.TracingOptions{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	mc := prometheus.New(nil)

	b, err := newBackend(cfg.Backend,
		backend.WithLogger(logger),
		backend.WithMetrics(mc),
		backend.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, multierr.Append(err, shutdownTracing(ctx))
	}

	return &app{
		cfg:             cfg,
		logger:          logger,
		metrics:         mc,
		backend:         b,
		client:          client.New(b),
		shutdownTracing: shutdownTracing,
	}, nil
}

func newBackend(cfg config.BackendConfig, opts ...backend.BackendOption) (backend.Backend, error) {
	switch cfg.Type {
	case config.BackendSqlite:
		if cfg.Sqlite.Path == "" {
			return sqlite.NewInMemoryBackend(sqlite.WithBackendOptions(opts...)), nil
		}

		return sqlite.NewSqliteBackend(cfg.Sqlite.Path, sqlite.WithBackendOptions(opts...)), nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		b, err := redisbackend.NewRedisBackend(rdb,
			redisbackend.WithKeyPrefix(cfg.Redis.Prefix),
			redisbackend.WithBackendOptions(opts...),
		)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("creating redis backend: %w", err), rdb.Close())
		}

		return b, nil
	}

	return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
}

func (a *app) Close(ctx context.Context) error {
	return multierr.Combine(
		a.backend.Close(),
		a.shutdownTracing(ctx),
	)
}
