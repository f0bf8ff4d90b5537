// Package config defines per-binary configuration loaded from GREET_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/rezkam/greet/internal/env"
)

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string        `env:"GREET_POSTGRES_URL"`
	MaxOpenConns    int           `env:"GREET_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"GREET_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"GREET_POSTGRES_CONN_MAX_LIFETIME"`
}

// Validate enforces the required DSN.
func (c *DatabaseConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("GREET_POSTGRES_URL is required")
	}
	return nil
}

// QueueConfig selects and configures the work queue backend.
type QueueConfig struct {
	// Kind is "sqs" or "memory". Memory is for single-process deployments
	// and tests; it still honors visibility timeouts and max receive counts.
	Kind              string        `env:"GREET_QUEUE_KIND"`
	URL               string        `env:"GREET_QUEUE_URL"`
	DeadLetterURL     string        `env:"GREET_QUEUE_DLQ_URL"`
	VisibilityTimeout time.Duration `env:"GREET_QUEUE_VISIBILITY_TIMEOUT"`
	MaxReceiveCount   int           `env:"GREET_QUEUE_MAX_RECEIVE_COUNT"`
	AWSRegion         string        `env:"GREET_AWS_REGION"`
}

// Validate checks backend-specific requirements.
func (c *QueueConfig) Validate() error {
	switch c.Kind {
	case "", "memory":
		return nil
	case "sqs":
		if c.URL == "" {
			return fmt.Errorf("GREET_QUEUE_URL is required when GREET_QUEUE_KIND is 'sqs'")
		}
		return nil
	default:
		return fmt.Errorf("unknown GREET_QUEUE_KIND: %s", c.Kind)
	}
}

// ApplyDefaults fills unset queue fields.
func (c *QueueConfig) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = "memory"
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.MaxReceiveCount <= 0 {
		c.MaxReceiveCount = 3
	}
}

// WebhookConfig configures outbound delivery.
type WebhookConfig struct {
	URL            string          `env:"GREET_WEBHOOK_URL"`
	Timeout        time.Duration   `env:"GREET_WEBHOOK_TIMEOUT"`
	RetryBackoffs  []time.Duration `env:"GREET_WEBHOOK_RETRY_BACKOFF"`
	LateGraceAfter time.Duration   `env:"GREET_LATE_EXECUTION_GRACE"`
}

// ApplyDefaults fills unset webhook fields.
func (c *WebhookConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if len(c.RetryBackoffs) == 0 {
		c.RetryBackoffs = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	if c.LateGraceAfter <= 0 {
		c.LateGraceAfter = 5 * time.Minute
	}
}

// WorkerConfig holds configuration for the worker binary (scheduler,
// executor, recovery sweep).
type WorkerConfig struct {
	Database      DatabaseConfig
	Queue         QueueConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig

	PollInterval         time.Duration `env:"GREET_POLL_INTERVAL"`
	ClaimBatchLimit      int           `env:"GREET_CLAIM_BATCH_LIMIT"`
	RecoveryBatchLimit   int           `env:"GREET_RECOVERY_BATCH_LIMIT"`
	ExecutorConcurrency  int           `env:"GREET_EXECUTOR_CONCURRENCY"`
	StuckClaimThreshold  time.Duration `env:"GREET_STUCK_CLAIM_THRESHOLD"`
	DeliveryTimeOverride string        `env:"GREET_DELIVERY_TIME_OVERRIDE"`
}

// LoadWorkerConfig loads, validates, and defaults worker configuration.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "greet-worker"
	}
	return cfg, nil
}

func (c *WorkerConfig) applyDefaults() {
	c.Queue.ApplyDefaults()
	c.Webhook.ApplyDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ClaimBatchLimit <= 0 {
		c.ClaimBatchLimit = 100
	}
	if c.RecoveryBatchLimit <= 0 {
		c.RecoveryBatchLimit = 1000
	}
	if c.ExecutorConcurrency <= 0 {
		c.ExecutorConcurrency = 10
	}
	if c.StuckClaimThreshold <= 0 {
		c.StuckClaimThreshold = 15 * time.Minute
	}
}

// ServerConfig holds configuration for the HTTP CRUD binary.
type ServerConfig struct {
	Database      DatabaseConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig

	HTTPPort             string `env:"GREET_HTTP_PORT"`
	DeliveryTimeOverride string `env:"GREET_DELIVERY_TIME_OVERRIDE"`
}

// LoadServerConfig loads, validates, and defaults server configuration.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	cfg.Webhook.ApplyDefaults()
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "greet-server"
	}
	return cfg, nil
}

// ObservabilityConfig configures the OTLP exporters.
type ObservabilityConfig struct {
	Enabled     bool   `env:"GREET_OTEL_ENABLED"`
	ServiceName string `env:"GREET_OTEL_SERVICE_NAME"`
}
