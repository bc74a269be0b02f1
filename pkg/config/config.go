package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Storage backend names accepted by RATCHET_STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Engine configuration
	Engine EngineConfig

	// LogLevel is the logrus level the server logs at
	LogLevel logrus.Level

	// PolicyFile optionally seeds the engine from a YAML policy bundle
	// and reloads it when the file changes. Empty disables policy
	// loading.
	PolicyFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Rate limiting, keyed by client address. Off by default.
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Backend     string
	PostgresDSN string
	RedisURL    string
}

// EngineConfig holds decision engine settings
type EngineConfig struct {
	EnforceHierarchy bool
	CacheEnabled     bool
	CacheSize        int
	CacheTTL         time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:     loadServerConfig(),
		Storage:    loadStorageConfig(),
		Engine:     loadEngineConfig(),
		LogLevel:   parseLogLevel(getEnv("RATCHET_LOG_LEVEL", "info")),
		PolicyFile: getEnv("RATCHET_POLICY_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("RATCHET_HOST", "0.0.0.0"),
		Port:            getEnv("RATCHET_PORT", "8080"),
		ReadTimeout:     getEnvDuration("RATCHET_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RATCHET_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("RATCHET_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RATCHET_SHUTDOWN_TIMEOUT", 30*time.Second),

		RateLimitEnabled:   getEnvBool("RATCHET_RATE_LIMIT_ENABLED", false),
		RateLimitPerMinute: getEnvInt("RATCHET_RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("RATCHET_RATE_LIMIT_BURST", 60),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:     getEnv("RATCHET_STORAGE_BACKEND", BackendMemory),
		PostgresDSN: getEnv("RATCHET_POSTGRES_DSN", ""),
		RedisURL:    getEnv("RATCHET_REDIS_URL", ""),
	}
}

// loadEngineConfig loads engine configuration from environment
func loadEngineConfig() EngineConfig {
	return EngineConfig{
		EnforceHierarchy: getEnvBool("RATCHET_ENFORCE_HIERARCHY", true),
		CacheEnabled:     getEnvBool("RATCHET_CACHE_ENABLED", false),
		CacheSize:        getEnvInt("RATCHET_CACHE_SIZE", 4096),
		CacheTTL:         getEnvDuration("RATCHET_CACHE_TTL", 0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Server.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitPerMinute <= 0 {
			return fmt.Errorf("rate limit must be positive when rate limiting is enabled")
		}
		if c.Server.RateLimitBurst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres storage")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, postgres, or redis)", c.Storage.Backend)
	}

	if c.Engine.CacheEnabled && c.Engine.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive when caching is enabled")
	}
	if c.Engine.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	return nil
}

// parseLogLevel parses a log level string, defaulting to info
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
