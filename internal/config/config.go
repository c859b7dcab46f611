// Package config provides centralized configuration for the registration engine.
// Settings come from environment variables with defaults, the pricing table
// comes from YAML (an embedded default or PRICING_FILE), and everything is
// validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Registration RegistrationConfig
	Import       ImportConfig
	Payment      PaymentConfig
	Outbox       OutboxConfig
	Storage      StorageConfig
	Tracing      TracingConfig
	Security     SecurityConfig
	Logging      LoggingConfig

	// Pricing is loaded from Registration.PricingFile, or the embedded
	// default table when no file is configured.
	Pricing PricingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps JSON request bodies (default: 10MB, imports included)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"10485760"`
}

// DatabaseConfig holds store selection and connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string (required for the postgres driver)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// RegistrationConfig holds coordinator settings.
type RegistrationConfig struct {
	// EventDate is race day; minimum ages are evaluated on this date
	EventDate time.Time `env:"EVENT_DATE" default:"2025-10-19"`

	// TxTimeout bounds a single registration transaction (default: 30s)
	TxTimeout time.Duration `env:"REGISTRATION_TX_TIMEOUT" default:"30s"`

	// MaxTxRetries is how many times a conflicting transaction is attempted (default: 3)
	MaxTxRetries int `env:"REGISTRATION_MAX_TX_RETRIES" default:"3"`

	// PaymentExpiry is how long a pending payment stays payable (default: 24h)
	PaymentExpiry time.Duration `env:"PAYMENT_EXPIRY" default:"24h"`

	// IdempotencyTTL is how long replay results stay in the in-process cache (default: 24h)
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" default:"24h"`

	// PricingFile is an optional YAML pricing table replacing the embedded default
	PricingFile string `env:"PRICING_FILE"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	// MaxConcurrent is the maximum number of imports committing at once (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT" default:"30s"`

	// MaxRows is the largest batch accepted in one request (default: 5000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"5000"`

	// Timeout bounds a whole import run (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// PaymentConfig holds payment gateway collaborator settings.
type PaymentConfig struct {
	// BaseURL prefixes payment reference URLs handed to clients
	BaseURL string `env:"PAYMENT_BASE_URL" default:"https://pay.sukamajurun.id/checkout"`

	// WebhookSecret verifies X-Signature on gateway callbacks
	WebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`

	// ExpiryCheckInterval is how often overdue pending payments are expired (default: 5m)
	ExpiryCheckInterval time.Duration `env:"PAYMENT_EXPIRY_CHECK_INTERVAL" default:"5m"`
}

// OutboxConfig holds notification dispatch settings.
type OutboxConfig struct {
	// DispatchInterval is how often due events are delivered (default: 10s)
	DispatchInterval time.Duration `env:"OUTBOX_DISPATCH_INTERVAL" default:"10s"`

	// BatchSize is the number of events fetched per dispatch (default: 100)
	BatchSize int `env:"OUTBOX_BATCH_SIZE" default:"100"`

	// MaxAttempts is the delivery attempt count before an event is dead (default: 8)
	MaxAttempts int `env:"OUTBOX_MAX_ATTEMPTS" default:"8"`

	// Parallelism bounds concurrent deliveries (default: 4)
	Parallelism int `env:"OUTBOX_PARALLELISM" default:"4"`

	// BaseBackoff is the first retry delay, doubled per attempt (default: 30s)
	BaseBackoff time.Duration `env:"OUTBOX_BASE_BACKOFF" default:"30s"`

	// ClaimLease is how long a claimed event stays hidden from other
	// dispatchers before it is offered again (default: 5m)
	ClaimLease time.Duration `env:"OUTBOX_CLAIM_LEASE" default:"5m"`

	// WebhookURL receives events; empty logs them instead
	WebhookURL string `env:"OUTBOX_WEBHOOK_URL"`

	// WebhookSecret signs outgoing event bodies
	WebhookSecret string `env:"OUTBOX_WEBHOOK_SECRET"`

	// WebhookTimeout bounds a single delivery request (default: 10s)
	WebhookTimeout time.Duration `env:"OUTBOX_WEBHOOK_TIMEOUT" default:"10s"`
}

// StorageConfig holds S3-compatible object storage settings for import reports.
// Archiving is disabled when Bucket is empty.
type StorageConfig struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" default:"auto"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Prefix          string `env:"S3_PREFIX" default:"import-reports"`
}

// Enabled reports whether import reports should be archived.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled turns on span export to stdout (default: false)
	Enabled bool `env:"TRACING_ENABLED" default:"false"`

	// SampleRatio is the fraction of traces sampled (default: 1.0)
	SampleRatio float64 `env:"TRACING_SAMPLE_RATIO" default:"1.0"`

	// ServiceName identifies this process in exported spans
	ServiceName string `env:"TRACING_SERVICE_NAME" default:"sukamaju-registration"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins (default: *)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// RateLimit is the requests allowed per client IP per RateWindow (0 disables)
	RateLimit int `env:"RATE_LIMIT" default:"100"`

	// RateWindow is the rate limiting window (default: 1m)
	RateWindow time.Duration `env:"RATE_WINDOW" default:"1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
