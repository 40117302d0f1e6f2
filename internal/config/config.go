// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.easel/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: HTTP listener, CORS, rate limiting, proxy trust
//   - Storage: PostgreSQL connection (see storage.go)
//   - Canvas: artifact canvas capacity and snapshot backend
//   - Stream: SSE streaming buffer and timeout limits
//   - Enrich: search-result page fetching (see enrich.go)
//   - Observability: OTLP tracing (see observability.go)
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidServerPort indicates the HTTP server port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidRateLimit indicates the rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidCanvasLimit indicates the canvas capacity is out of range.
	ErrInvalidCanvasLimit = errors.New("invalid canvas limit")

	// ErrInvalidCanvasStore indicates the canvas snapshot backend is not recognized.
	ErrInvalidCanvasStore = errors.New("invalid canvas store")

	// ErrInvalidStreamBuffer indicates the stream buffer cap is out of range.
	ErrInvalidStreamBuffer = errors.New("invalid stream buffer size")

	// ErrInvalidSampleRatio indicates the trace sample ratio is out of range.
	ErrInvalidSampleRatio = errors.New("invalid sample ratio")
)

const (
	// DefaultMaxOpenArtifacts is the default canvas capacity.
	// At most this many artifacts are kept open per session; the oldest
	// (by added-at time) is evicted when a new one arrives at capacity.
	DefaultMaxOpenArtifacts = 5

	// MaxAllowedOpenArtifacts is the absolute canvas capacity ceiling.
	MaxAllowedOpenArtifacts = 64

	// DefaultMaxHistoryMessages is the default number of messages to load.
	DefaultMaxHistoryMessages int32 = 100

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages int32 = 10000

	// MinHistoryMessages is the minimum allowed value for MaxHistoryMessages.
	MinHistoryMessages int32 = 10

	// DefaultStreamBufferBytes caps the per-message streaming buffer (1 MiB).
	DefaultStreamBufferBytes = 1 << 20
)

// Canvas snapshot backend identifiers used in CanvasConfig.Store.
const (
	CanvasStoreMemory   = "memory"
	CanvasStoreFile     = "file"
	CanvasStorePostgres = "postgres"
)

// CanvasConfig holds artifact canvas configuration.
type CanvasConfig struct {
	// MaxOpen is the per-session artifact capacity (default: 5)
	MaxOpen int `mapstructure:"max_open" json:"max_open"`
	// Store selects the snapshot backend: "file" (default), "memory", "postgres"
	Store string `mapstructure:"store" json:"store"`
}

// StreamConfig holds SSE streaming configuration.
type StreamConfig struct {
	// MaxBufferBytes caps the per-message accumulation buffer (default: 1 MiB)
	MaxBufferBytes int `mapstructure:"max_buffer_bytes" json:"max_buffer_bytes"`
	// SSETimeoutSeconds bounds a single streamed response (default: 300)
	SSETimeoutSeconds int `mapstructure:"sse_timeout_seconds" json:"sse_timeout_seconds"`
	// MaxHistoryMessages is how many recent turns the reply source sees as
	// context (default: 100, clamped by NormalizeMaxHistoryMessages)
	MaxHistoryMessages int32 `mapstructure:"max_history_messages" json:"max_history_messages"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, tokens), update MarshalJSON.
type Config struct {
	// HTTP server configuration
	ServerHost     string   `mapstructure:"server_host" json:"server_host"`
	ServerPort     int      `mapstructure:"server_port" json:"server_port"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy     bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For headers (set true behind reverse proxy)
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Canvas configuration
	Canvas CanvasConfig `mapstructure:"canvas" json:"canvas"`

	// Stream configuration
	Stream StreamConfig `mapstructure:"stream" json:"stream"`

	// Search-result enrichment configuration (see enrich.go)
	Enrich EnrichConfig `mapstructure:"enrich" json:"enrich"`

	// Observability configuration (see observability.go)
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.easel/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".easel")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 8420)
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 20)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "easel")
	viper.SetDefault("postgres_password", "easel_dev_password")
	viper.SetDefault("postgres_db_name", "easel")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Canvas defaults
	viper.SetDefault("canvas.max_open", DefaultMaxOpenArtifacts)
	viper.SetDefault("canvas.store", CanvasStoreFile)

	// Stream defaults
	viper.SetDefault("stream.max_buffer_bytes", DefaultStreamBufferBytes)
	viper.SetDefault("stream.sse_timeout_seconds", 300)
	viper.SetDefault("stream.max_history_messages", DefaultMaxHistoryMessages)

	// Enrich defaults
	viper.SetDefault("enrich.enabled", false)
	viper.SetDefault("enrich.parallelism", 2)
	viper.SetDefault("enrich.delay_ms", 1000)
	viper.SetDefault("enrich.timeout_ms", 30000)

	// Observability defaults
	viper.SetDefault("observability.endpoint", "")
	viper.SetDefault("observability.environment", "dev")
	viper.SetDefault("observability.service_name", "easel")
	viper.SetDefault("observability.sample_ratio", 1.0)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variable overrides explicitly.
// DATABASE_URL is handled separately in parseDatabaseURL (it is the one
// conventional variable that does not carry the EASEL_ prefix).
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Server overrides
	mustBind("server_host", "EASEL_SERVER_HOST")
	mustBind("server_port", "EASEL_SERVER_PORT")
	mustBind("cors_origins", "EASEL_CORS_ORIGINS")
	mustBind("trust_proxy", "EASEL_TRUST_PROXY")

	// Canvas overrides
	mustBind("canvas.max_open", "EASEL_CANVAS_MAX_OPEN")
	mustBind("canvas.store", "EASEL_CANVAS_STORE")

	// Observability overrides
	mustBind("observability.endpoint", "EASEL_OTLP_ENDPOINT")
	mustBind("observability.environment", "EASEL_ENVIRONMENT")

	// Logging overrides
	mustBind("log_level", "EASEL_LOG_LEVEL")
	mustBind("log_json", "EASEL_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method or the nested struct's MarshalJSON.
// The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// SlogLevel maps the configured log level string to a slog.Level.
// Unknown values fall back to Info; Validate rejects them beforehand.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr returns the host:port address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
