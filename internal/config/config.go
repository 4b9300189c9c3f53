// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store backends.
const (
	BackendArango   = "arango"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Backend is one of: arango, postgres, memory (default: arango)
	Backend string `env:"STORE_BACKEND" default:"arango"`

	// URL is the backend address. For arango a comma-separated endpoint
	// list, for postgres a connection string. Unused for memory.
	URL string `env:"STORE_URL" envAlt:"DATABASE_URL"`

	// Username for arango basic auth (default: root)
	Username string `env:"STORE_USER" envAlt:"ARANGO_USER" default:"root"`

	// Password for arango basic auth
	Password string `env:"STORE_PASSWORD" envAlt:"ARANGO_PASSWORD"`

	// MaxConns is the postgres pool size (default: 20)
	MaxConns int `env:"STORE_MAX_CONNS" default:"20"`

	// MinConns is the number of idle postgres connections kept open (default: 2)
	MinConns int `env:"STORE_MIN_CONNS" default:"2"`

	// HealthInterval is how often the store is pinged for readiness (default: 30s)
	HealthInterval time.Duration `env:"STORE_HEALTH_INTERVAL" default:"30s"`
}

// UploadConfig holds file upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed body size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerSecond is the sustained request rate per IP (default: 10)
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" default:"10"`

	// Burst is the token bucket size per IP (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`

	// UploadLimit is requests per minute per IP for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys grants permission levels as comma-separated key=level pairs,
	// e.g. "k1=owner,k2=reader". Levels: reader, writer, maintainer, owner.
	APIKeys []string `env:"API_KEYS"`

	// PublicRead lets unauthenticated callers read workspaces (default: true)
	PublicRead bool `env:"PUBLIC_READ" default:"true"`
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
