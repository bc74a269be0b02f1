package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads so ambient
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"RATCHET_HOST", "RATCHET_PORT",
		"RATCHET_READ_TIMEOUT", "RATCHET_WRITE_TIMEOUT",
		"RATCHET_IDLE_TIMEOUT", "RATCHET_SHUTDOWN_TIMEOUT",
		"RATCHET_LOG_LEVEL", "RATCHET_STORAGE_BACKEND",
		"RATCHET_POSTGRES_DSN", "RATCHET_REDIS_URL",
		"RATCHET_POLICY_FILE", "RATCHET_ENFORCE_HIERARCHY",
		"RATCHET_CACHE_ENABLED", "RATCHET_CACHE_SIZE", "RATCHET_CACHE_TTL",
		"RATCHET_RATE_LIMIT_ENABLED", "RATCHET_RATE_LIMIT_PER_MINUTE",
		"RATCHET_RATE_LIMIT_BURST",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Empty(t, cfg.PolicyFile)
	assert.True(t, cfg.Engine.EnforceHierarchy)
	assert.False(t, cfg.Engine.CacheEnabled)
	assert.Equal(t, 4096, cfg.Engine.CacheSize)
	assert.Equal(t, time.Duration(0), cfg.Engine.CacheTTL)
	assert.False(t, cfg.Server.RateLimitEnabled)
	assert.Equal(t, 600, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, 60, cfg.Server.RateLimitBurst)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATCHET_HOST", "127.0.0.1")
	t.Setenv("RATCHET_PORT", "9090")
	t.Setenv("RATCHET_READ_TIMEOUT", "5s")
	t.Setenv("RATCHET_LOG_LEVEL", "debug")
	t.Setenv("RATCHET_STORAGE_BACKEND", "redis")
	t.Setenv("RATCHET_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("RATCHET_POLICY_FILE", "/etc/ratchet/policy.yaml")
	t.Setenv("RATCHET_ENFORCE_HIERARCHY", "false")
	t.Setenv("RATCHET_CACHE_ENABLED", "true")
	t.Setenv("RATCHET_CACHE_SIZE", "512")
	t.Setenv("RATCHET_CACHE_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Storage.RedisURL)
	assert.Equal(t, "/etc/ratchet/policy.yaml", cfg.PolicyFile)
	assert.False(t, cfg.Engine.EnforceHierarchy)
	assert.True(t, cfg.Engine.CacheEnabled)
	assert.Equal(t, 512, cfg.Engine.CacheSize)
	assert.Equal(t, 30*time.Second, cfg.Engine.CacheTTL)
}

func TestLoadConfig_PostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATCHET_STORAGE_BACKEND", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres DSN is required")
}

func TestLoadConfig_RedisRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATCHET_STORAGE_BACKEND", "redis")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis URL is required")
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATCHET_STORAGE_BACKEND", "cassandra")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage backend")
}

func TestLoadConfig_BadDurationFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATCHET_READ_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
			},
			Storage: StorageConfig{Backend: BackendMemory},
			Engine:  EngineConfig{CacheSize: 4096},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "negative read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -time.Second },
			wantErr: "read timeout must be positive",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout must be positive",
		},
		{
			name:    "cache enabled with zero size",
			mutate:  func(c *Config) { c.Engine.CacheEnabled = true; c.Engine.CacheSize = 0 },
			wantErr: "cache size must be positive",
		},
		{
			name:    "negative cache TTL",
			mutate:  func(c *Config) { c.Engine.CacheTTL = -time.Minute },
			wantErr: "cache TTL must not be negative",
		},
		{
			name: "rate limiting enabled with zero rate",
			mutate: func(c *Config) {
				c.Server.RateLimitEnabled = true
				c.Server.RateLimitPerMinute = 0
			},
			wantErr: "rate limit must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{input: "debug", want: logrus.DebugLevel},
		{input: "info", want: logrus.InfoLevel},
		{input: "WARN", want: logrus.WarnLevel},
		{input: "warning", want: logrus.WarnLevel},
		{input: "error", want: logrus.ErrorLevel},
		{input: "verbose", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", defaultValue: false, want: true},
		{name: "one", envValue: "1", defaultValue: false, want: true},
		{name: "mixed case", envValue: "TRUE", defaultValue: false, want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "unset uses default", envValue: "", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RATCHET_TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvBool("RATCHET_TEST_BOOL", tt.defaultValue))
		})
	}
}
