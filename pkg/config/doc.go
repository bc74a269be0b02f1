// Package config provides server configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Variables that fail to parse fall back to
// their defaults; Validate catches values that parse but make no sense.
//
// # Configuration Structure
//
// Server settings:
//
//	RATCHET_HOST="0.0.0.0"
//	RATCHET_PORT="8080"
//	RATCHET_READ_TIMEOUT="15s"
//	RATCHET_WRITE_TIMEOUT="15s"
//	RATCHET_IDLE_TIMEOUT="60s"
//	RATCHET_SHUTDOWN_TIMEOUT="30s"
//	RATCHET_RATE_LIMIT_ENABLED="false"
//	RATCHET_RATE_LIMIT_PER_MINUTE="600"
//	RATCHET_RATE_LIMIT_BURST="60"
//
// Storage settings:
//
//	RATCHET_STORAGE_BACKEND="memory"  # memory, postgres, redis
//	RATCHET_POSTGRES_DSN="postgres://localhost/ratchet?sslmode=disable"
//	RATCHET_REDIS_URL="redis://localhost:6379/0"
//
// Engine settings:
//
//	RATCHET_ENFORCE_HIERARCHY="true"
//	RATCHET_CACHE_ENABLED="false"
//	RATCHET_CACHE_SIZE="4096"
//	RATCHET_CACHE_TTL="0"  # 0 disables expiry
//
// Policy and logging:
//
//	RATCHET_POLICY_FILE="/etc/ratchet/policy.yaml"  # optional
//	RATCHET_LOG_LEVEL="info"  # debug, info, warn, error
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s\n", cfg.Server.Addr())
//	fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
//
// # Related Packages
//
//   - pkg/rbac: Consumes the engine settings
//   - pkg/policyfile: Loads the file named by RATCHET_POLICY_FILE
package config
