// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Every variable carries the AUTHZ_ prefix.
//
// # Configuration Structure
//
// Server settings:
//
//	AUTHZ_HOST="0.0.0.0"
//	AUTHZ_PORT="8080"
//	AUTHZ_HEALTH_PORT="9090"
//	AUTHZ_READ_TIMEOUT="15s"
//	AUTHZ_WRITE_TIMEOUT="15s"
//	AUTHZ_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	AUTHZ_STORAGE_BACKEND="memory"  # memory, postgres
//	AUTHZ_POSTGRES_URL="postgres://localhost/authz"
//	AUTHZ_POSTGRES_MAX_CONNS="25"
//
// Cache settings:
//
//	AUTHZ_CACHE_BACKEND="memory"  # memory, redis, none
//	AUTHZ_CACHE_MAX_ENTRIES="10000"
//	AUTHZ_CACHE_TTL="15m"
//	AUTHZ_REDIS_URL="redis://localhost:6379"
//	AUTHZ_REDIS_POOL_SIZE="10"
//
// Catalogue settings:
//
//	AUTHZ_CATALOG_PATH=""           # empty uses the embedded default catalogue
//	AUTHZ_CATALOG_WATCH="true"
//
// Janitor settings:
//
//	AUTHZ_JANITOR_ENABLED="true"
//	AUTHZ_JANITOR_SCHEDULE="@every 10m"
//	AUTHZ_JANITOR_RETENTION="24h"
//
// Webhook settings:
//
//	AUTHZ_WEBHOOK_ENDPOINTS="https://a.example.com/hook,https://b.example.com/hook"
//	AUTHZ_WEBHOOK_SECRET="shared-secret"
//	AUTHZ_WEBHOOK_TIMEOUT="10s"
//	AUTHZ_WEBHOOK_MAX_ATTEMPTS="3"
//	AUTHZ_WEBHOOK_WORKERS="4"
//
// Observability settings:
//
//	AUTHZ_LOG_LEVEL="info"  # debug, info, warn, error
//	AUTHZ_METRICS_ENABLED="true"
//	AUTHZ_OTEL_ENABLED="false"
//	AUTHZ_OTEL_ENDPOINT="localhost:4317"
//	AUTHZ_OTEL_SERVICE_NAME="authzd"
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
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
//
// LoadConfig validates the assembled configuration and fails fast on
// contradictory settings, for example a redis cache backend without a
// redis URL.
//
// # Related Packages
//
//   - github.com/resumekit/authz/pkg/observability: log level and OTel types
//   - github.com/resumekit/authz/cmd/authzd: the daemon wiring all sections together
package config
