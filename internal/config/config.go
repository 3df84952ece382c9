// Package config provides centralized configuration management for csvjob.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	API      APIConfig
	Poll     PollConfig
	Upload   UploadConfig
	Table    TableConfig
	Server   ServerConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Notify   NotifyConfig
}

// APIConfig holds settings for the CSV processing backend.
type APIConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:3000 (required)
	// VITE_API_BASE_URL is accepted for existing frontend .env files.
	BaseURL string `env:"API_BASE_URL" envAlt:"VITE_API_BASE_URL" required:"true"`

	// UploadPath is the upload endpoint relative to BaseURL
	UploadPath string `env:"API_UPLOAD_PATH" default:"/api/file/upload"`

	// Token is an optional bearer token sent with every backend request
	Token string `env:"API_TOKEN"`

	// RequestTimeout bounds a single status query (default: 15s)
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" default:"15s"`

	// UploadTimeout bounds the upload request (default: 2m)
	UploadTimeout time.Duration `env:"API_UPLOAD_TIMEOUT" default:"2m"`
}

// PollConfig holds job status polling settings.
type PollConfig struct {
	// Interval between status queries (default: 2s)
	Interval time.Duration `env:"POLL_INTERVAL" default:"2s"`

	// MaxConsecutiveErrors is how many failed queries in a row fail the job (default: 5)
	MaxConsecutiveErrors int `env:"POLL_MAX_CONSECUTIVE_ERRORS" default:"5"`

	// MaxDuration bounds how long a job may poll; 0 disables the bound (default: 30m)
	MaxDuration time.Duration `env:"POLL_MAX_DURATION" default:"30m"`
}

// UploadConfig holds file acceptance settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent limits uploads read in parallel by the web server (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWait is how long an upload waits for a free slot (default: 10s)
	MaxWait time.Duration `env:"UPLOAD_MAX_WAIT" default:"10s"`
}

// TableConfig holds result table settings.
type TableConfig struct {
	// RowsPerPage is the table page size (default: 10)
	RowsPerPage int `env:"TABLE_ROWS_PER_PAGE" default:"10"`

	// RequiredColumns are projected from the processed CSV, in order
	RequiredColumns []string `env:"TABLE_REQUIRED_COLUMNS" default:"Department Name,Total Number of Sales"`

	// Dialect is the CSV tokenizer: simple or rfc4180 (default: simple)
	Dialect string `env:"CSV_DIALECT" default:"simple"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// NotifyConfig holds job event publishing settings.
type NotifyConfig struct {
	// AMQPURL is the RabbitMQ connection string; empty disables publishing
	AMQPURL string `env:"AMQP_URL"`

	// Exchange receives job events (default: csvjob.events)
	Exchange string `env:"AMQP_EXCHANGE" default:"csvjob.events"`

	// RoutingKey is used for every published event (default: job.completed)
	RoutingKey string `env:"AMQP_ROUTING_KEY" default:"job.completed"`
}

// Enabled reports whether events should be published.
func (c *NotifyConfig) Enabled() bool {
	return c.AMQPURL != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
