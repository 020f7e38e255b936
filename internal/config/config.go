// Package config loads the worker configuration. application.yaml is deep merged with an optional
// application-local.yaml, environment variables prefixed with LOANFLOW_ override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOANFLOW"

// Files read from the config directory, later files override earlier ones
var files = []string{"application.yaml", "application-local.yaml"}

const (
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

type Config struct {
	Processes ProcessesConfig `mapstructure:"processes"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ProcessesConfig struct {
	API ProcessesAPIConfig `mapstructure:"api"`
}

// ProcessesAPIConfig holds the connection to the process service
type ProcessesAPIConfig struct {
	Endpoint     string        `mapstructure:"endpoint"      validate:"required,url"`
	ClientID     string        `mapstructure:"client-id"     validate:"required"`
	ClientSecret string        `mapstructure:"client-secret" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"       validate:"gte=0"`
}

type BackendConfig struct {
	Type   string       `mapstructure:"type"   validate:"oneof=sqlite redis"`
	Sqlite SqliteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type SqliteConfig struct {
	// Path of the database file. Empty uses an in-memory database.
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"  validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

type WorkerConfig struct {
	WorkflowPollers          int           `mapstructure:"workflow-pollers"            validate:"gte=1"`
	ActivityPollers          int           `mapstructure:"activity-pollers"            validate:"gte=1"`
	MaxParallelWorkflowTasks int           `mapstructure:"max-parallel-workflow-tasks" validate:"gte=0"`
	MaxParallelActivityTasks int           `mapstructure:"max-parallel-activity-tasks" validate:"gte=0"`
	PollingInterval          time.Duration `mapstructure:"polling-interval"            validate:"gt=0"`
	CacheSize                int           `mapstructure:"cache-size"                  validate:"gte=1"`
	CacheTTL                 time.Duration `mapstructure:"cache-ttl"                   validate:"gt=0"`
}

type CurrencyConfig struct {
	Endpoint        string        `mapstructure:"endpoint"         validate:"required,url"`
	Timeout         time.Duration `mapstructure:"timeout"          validate:"gte=0"`
	CacheTTL        time.Duration `mapstructure:"cache-ttl"        validate:"gte=0"`
	BreakerFailures uint32        `mapstructure:"breaker-failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker-timeout"  validate:"gt=0"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type TracingConfig struct {
	Exporter    string `mapstructure:"exporter"     validate:"oneof=none stdout otlp"`
	Endpoint    string `mapstructure:"endpoint"     validate:"required_if=Exporter otlp"`
	ServiceName string `mapstructure:"service-name" validate:"required"`
}

// Load reads the configuration from the given directory. Missing files are skipped, the resulting
// configuration is validated.
func Load(dir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if dir == "" {
		dir = "."
	}

	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required properties and value ranges
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}

			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}

		return fmt.Errorf("validating config: %w", err)
	}

	return nil
}

// Every key needs a default so environment variables are picked up when decoding
func setDefaults(v *viper.Viper) {
	v.SetDefault("processes.api.endpoint", "")
	v.SetDefault("processes.api.client-id", "")
	v.SetDefault("processes.api.client-secret", "")
	v.SetDefault("processes.api.timeout", "30s")

	v.SetDefault("backend.type", BackendSqlite)
	v.SetDefault("backend.sqlite.path", "loanflow.sqlite")
	v.SetDefault("backend.redis.address", "localhost:6379")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.prefix", "loanflow")

	v.SetDefault("worker.workflow-pollers", 2)
	v.SetDefault("worker.activity-pollers", 2)
	v.SetDefault("worker.max-parallel-workflow-tasks", 0)
	v.SetDefault("worker.max-parallel-activity-tasks", 0)
	v.SetDefault("worker.polling-interval", "200ms")
	v.SetDefault("worker.cache-size", 128)
	v.SetDefault("worker.cache-ttl", "10s")

	v.SetDefault("currency.endpoint", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1")
	v.SetDefault("currency.timeout", "10s")
	v.SetDefault("currency.cache-ttl", "1h")
	v.SetDefault("currency.breaker-failures", 5)
	v.SetDefault("currency.breaker-timeout", "30s")

	v.SetDefault("server.address", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("tracing.exporter", ExporterNone)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service-name", "loanflow")
}
