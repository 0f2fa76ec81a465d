// Command authzd serves the authorization engine over HTTP.
//
// Configuration comes from AUTHZ_* environment variables; see
// pkg/config for the full list. The daemon exposes the engine's REST
// API on the main port and health probes plus Prometheus metrics on a
// separate health port.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/resumekit/authz/pkg/audit"
	"github.com/resumekit/authz/pkg/authz"
	memcache "github.com/resumekit/authz/pkg/cache/memory"
	rediscache "github.com/resumekit/authz/pkg/cache/redis"
	"github.com/resumekit/authz/pkg/catalog"
	"github.com/resumekit/authz/pkg/config"
	"github.com/resumekit/authz/pkg/events"
	"github.com/resumekit/authz/pkg/httputil"
	"github.com/resumekit/authz/pkg/janitor"
	"github.com/resumekit/authz/pkg/observability"
	memstore "github.com/resumekit/authz/pkg/storage/memory"
	pgstore "github.com/resumekit/authz/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx, cancel := context.WithCancel(observability.WithLogger(context.Background(), logger))
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialize OpenTelemetry: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var (
		repos      authz.Repositories
		seedTarget catalog.SeedTarget
		purger     janitor.Purger
		db         *sql.DB
	)
	switch cfg.Storage.Backend {
	case "postgres":
		db, err = pgstore.Connect(ctx, pgstore.Config{
			URL:      cfg.Storage.PostgresURL,
			MaxConns: cfg.Storage.PostgresMaxConns,
			MinConns: cfg.Storage.PostgresMinConns,
			Timeout:  cfg.Storage.PostgresTimeout,
		})
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		if err := pgstore.RunMigrations(ctx, db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		store := pgstore.NewStore(db)
		repos = store.Repositories()
		seedTarget = store
		purger = store
		pgstore.ReportPoolStats(ctx, db, metrics, 30*time.Second)
	default:
		store := memstore.NewStore()
		repos = store.Repositories()
		seedTarget = store
		purger = store
	}

	var (
		contextCache authz.ContextCache
		redisClient  *redis.Client
		closeCache   func() error
	)
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := rediscache.NewCache(rediscache.Config{
			URL:        cfg.Cache.RedisURL,
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			MaxRetries: cfg.Cache.RedisMaxRetries,
			PoolSize:   cfg.Cache.RedisPoolSize,
			TTL:        cfg.Cache.TTL,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		contextCache = rc
		redisClient = rc.Client()
		closeCache = rc.Close
	case "none":
		// Every check resolves from storage.
	default:
		mc := memcache.NewCache(&memcache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL,
		})
		contextCache = mc
		closeCache = mc.Close
	}

	bus := events.NewBus(ctx)
	var sink *events.WebhookSink
	if len(cfg.Webhooks.Endpoints) > 0 {
		sink = events.NewWebhookSink(ctx, events.WebhookSinkConfig{
			Timeout: cfg.Webhooks.Timeout,
			Workers: cfg.Webhooks.Workers,
			Retry:   events.RetryConfig{MaxAttempts: cfg.Webhooks.MaxAttempts},
		}, metrics)
		for i, url := range cfg.Webhooks.Endpoints {
			endpoint := &events.Endpoint{
				Name:   fmt.Sprintf("endpoint-%d", i+1),
				URL:    url,
				Secret: cfg.Webhooks.Secret,
			}
			if err := sink.Register(endpoint); err != nil {
				log.Fatalf("failed to register webhook %s: %v", url, err)
			}
		}
		bus.Subscribe("webhooks", sink.HandleEvent)
	}

	var auditLog audit.Logger
	if db != nil {
		dbLog, err := audit.NewDBLogger(db)
		if err != nil {
			log.Fatalf("failed to initialize audit log: %v", err)
		}
		auditLog = dbLog
	}

	engine := authz.NewEngine(repos, authz.Options{
		Cache:   contextCache,
		Events:  bus,
		Audit:   auditLog,
		Metrics: metrics,
	})

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("failed to load permission catalogue: %v", err)
	}
	if err := catalog.Seed(ctx, seedTarget, cat); err != nil {
		log.Fatalf("failed to seed permission catalogue: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"resources": len(cat.Resources),
		"roles":     len(cat.Roles),
	}).Info("permission catalogue seeded")

	var watcher *catalog.Watcher
	if cfg.Catalog.Path != "" && cfg.Catalog.Watch {
		watcher, err = catalog.NewWatcher(cfg.Catalog.Path, func(c *catalog.Catalog) {
			if err := catalog.Seed(ctx, seedTarget, c); err != nil {
				logger.WithError(err).Error("failed to re-seed catalogue after reload")
				return
			}
			if err := engine.Authz.InvalidateAllCaches(ctx); err != nil {
				logger.WithError(err).Warn("failed to invalidate contexts after catalogue reload")
			}
		})
		if err != nil {
			log.Fatalf("failed to watch catalogue file: %v", err)
		}
		watcher.Start(ctx)
	}

	var sweeper *janitor.Janitor
	if cfg.Janitor.Enabled {
		sweeper = janitor.New(purger, engine.Authz, metrics, janitor.Config{
			Schedule:  cfg.Janitor.Schedule,
			Retention: cfg.Janitor.Retention,
		})
		if err := sweeper.Start(ctx); err != nil {
			log.Fatalf("failed to start expiry janitor: %v", err)
		}
	}

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.IdentityMiddleware)
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	if auditLog != nil {
		router.Use(audit.NewMiddleware(auditLog, false).Handler)
	}
	engine.RegisterRoutes(router)

	var handler http.Handler = router
	if providers != nil {
		handler = otelhttp.NewHandler(router, "authzd")
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    server.Addr,
			"health":  healthServer.Addr,
			"storage": cfg.Storage.Backend,
			"cache":   cfg.Cache.Backend,
		}).Info("authzd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if sweeper != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	if watcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return watcher.Close()
		})
	}
	if sink != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return sink.Close()
		})
	}
	if closeCache != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return closeCache()
		})
	}
	if db != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return db.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown did not complete cleanly")
		os.Exit(1)
	}
	logger.Info("authzd stopped")
}

// loadCatalog reads the catalogue from path, or falls back to the
// built-in defaults when no path is configured.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
