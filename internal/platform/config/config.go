// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"GUILDLEDGER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"GUILDLEDGER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"GUILDLEDGER_REQUEST_TIMEOUT" envDefault:"30s"`

	// OwnerAddress is the deployer: owner of the permission registry and
	// administrator of the registry authority.
	OwnerAddress string `env:"GUILDLEDGER_OWNER_ADDRESS,required,notEmpty"`

	JWT        JWTConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Submission SubmissionConfig
	RateLimit  RateLimitConfig
	Badge      BadgeConfig
	Tracing    TracingConfig
}

type JWTConfig struct {
	// Use a default for development - should be overridden in production
	SigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string `env:"JWT_ISSUER" envDefault:"guildledger"`
	Audience   string `env:"JWT_AUDIENCE" envDefault:"guildledger-api"`
}

// PostgresConfig selects the SQL stores when URL is set; the in-memory
// stores are used otherwise.
type PostgresConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
}

// RedisConfig selects the Redis receipt store when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the Kafka event publisher when Brokers is set.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"guildledger.events"`
	Partitions int32    `env:"KAFKA_EVENTS_PARTITIONS" envDefault:"3"`
	Replicas   int16    `env:"KAFKA_EVENTS_REPLICAS" envDefault:"1"`
}

type SubmissionConfig struct {
	QueueSize  int           `env:"SUBMISSION_QUEUE_SIZE" envDefault:"256"`
	ReceiptTTL time.Duration `env:"SUBMISSION_RECEIPT_TTL" envDefault:"24h"`
	// WaitTimeout caps how long ?wait=true blocks a request.
	WaitTimeout time.Duration `env:"SUBMISSION_WAIT_TIMEOUT" envDefault:"10s"`
	// PollInterval is how often a waiting request re-reads a receipt that
	// another instance may finalize.
	PollInterval time.Duration `env:"SUBMISSION_POLL_INTERVAL" envDefault:"250ms"`
}

// RateLimitConfig bounds how many writes one client may submit per window.
type RateLimitConfig struct {
	Disabled bool          `env:"RATE_LIMIT_DISABLED" envDefault:"false"`
	Writes   int           `env:"RATE_LIMIT_WRITES" envDefault:"60"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type BadgeConfig struct {
	BaseURI string `env:"BADGE_BASE_URI"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"guildledger"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) Validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("JWT_SIGNING_KEY must not be empty")
	}
	if c.Submission.QueueSize <= 0 {
		return errors.New("SUBMISSION_QUEUE_SIZE must be positive")
	}
	if c.Submission.PollInterval <= 0 {
		return errors.New("SUBMISSION_POLL_INTERVAL must be positive")
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Writes <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("RATE_LIMIT_WRITES and RATE_LIMIT_WINDOW must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("KAFKA_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
