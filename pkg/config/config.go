package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/resumekit/authz/pkg/observability"
)

// Config holds all daemon configuration, loaded from AUTHZ_-prefixed
// environment variables.
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Cache         CacheConfig
	Catalog       CatalogConfig
	Janitor       JanitorConfig
	Webhooks      WebhooksConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig selects and configures the repository backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend string

	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
}

// CacheConfig selects and configures the context cache backend.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend string

	// MaxEntries bounds the in-memory cache.
	MaxEntries int
	// TTL is the safety-net expiry for cached contexts.
	TTL time.Duration

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// CatalogConfig points at the permission catalogue.
type CatalogConfig struct {
	// Path to a catalogue file. Empty uses the embedded default.
	Path string
	// Watch reloads the file on change. Only meaningful with a Path.
	Watch bool
}

// JanitorConfig controls the expired-assignment sweeper.
type JanitorConfig struct {
	Enabled   bool
	Schedule  string
	Retention time.Duration
}

// WebhooksConfig configures outbound event delivery.
type WebhooksConfig struct {
	// Endpoints receive every authorization event.
	Endpoints []string
	// Secret signs deliveries with HMAC-SHA256.
	Secret string

	Timeout     time.Duration
	MaxAttempts int
	Workers     int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Catalog:       loadCatalogConfig(),
		Janitor:       loadJanitorConfig(),
		Webhooks:      loadWebhooksConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("AUTHZ_HOST", "0.0.0.0"),
		Port:            getEnv("AUTHZ_PORT", "8080"),
		ReadTimeout:     getEnvDuration("AUTHZ_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("AUTHZ_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("AUTHZ_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("AUTHZ_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("AUTHZ_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:          getEnv("AUTHZ_STORAGE_BACKEND", "memory"),
		PostgresURL:      getEnv("AUTHZ_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("AUTHZ_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("AUTHZ_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:  getEnvDuration("AUTHZ_POSTGRES_TIMEOUT", 30*time.Second),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:         getEnv("AUTHZ_CACHE_BACKEND", "memory"),
		MaxEntries:      getEnvInt("AUTHZ_CACHE_MAX_ENTRIES", 10000),
		TTL:             getEnvDuration("AUTHZ_CACHE_TTL", 15*time.Minute),
		RedisURL:        getEnv("AUTHZ_REDIS_URL", ""),
		RedisPassword:   getEnv("AUTHZ_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("AUTHZ_REDIS_DB", 0),
		RedisMaxRetries: getEnvInt("AUTHZ_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:   getEnvInt("AUTHZ_REDIS_POOL_SIZE", 10),
	}
}

// loadCatalogConfig loads catalogue configuration from environment
func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:  getEnv("AUTHZ_CATALOG_PATH", ""),
		Watch: getEnvBool("AUTHZ_CATALOG_WATCH", true),
	}
}

// loadJanitorConfig loads janitor configuration from environment
func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Enabled:   getEnvBool("AUTHZ_JANITOR_ENABLED", true),
		Schedule:  getEnv("AUTHZ_JANITOR_SCHEDULE", "@every 10m"),
		Retention: getEnvDuration("AUTHZ_JANITOR_RETENTION", 24*time.Hour),
	}
}

// loadWebhooksConfig loads webhook configuration from environment
func loadWebhooksConfig() WebhooksConfig {
	return WebhooksConfig{
		Endpoints:   getEnvList("AUTHZ_WEBHOOK_ENDPOINTS"),
		Secret:      getEnv("AUTHZ_WEBHOOK_SECRET", ""),
		Timeout:     getEnvDuration("AUTHZ_WEBHOOK_TIMEOUT", 10*time.Second),
		MaxAttempts: getEnvInt("AUTHZ_WEBHOOK_MAX_ATTEMPTS", 3),
		Workers:     getEnvInt("AUTHZ_WEBHOOK_WORKERS", 4),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("AUTHZ_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("AUTHZ_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("AUTHZ_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("AUTHZ_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("AUTHZ_OTEL_SERVICE_NAME", "authzd"),
		OTelServiceVersion: getEnv("AUTHZ_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("AUTHZ_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on backend
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or postgres)", c.Storage.Backend)
	}

	// Validate cache config based on backend
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or none)", c.Cache.Backend)
	}

	// Validate janitor config
	if c.Janitor.Enabled && c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor schedule is required when the janitor is enabled")
	}
	if c.Janitor.Retention < 0 {
		return fmt.Errorf("janitor retention must not be negative")
	}

	// Validate webhook config
	if len(c.Webhooks.Endpoints) > 0 && c.Webhooks.Secret == "" {
		return fmt.Errorf("webhook secret is required when endpoints are configured")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
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

// getEnvList returns a comma-separated environment variable as a slice,
// trimming whitespace and dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
