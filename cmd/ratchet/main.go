package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ratchet/pkg/config"
	"github.com/platinummonkey/ratchet/pkg/httpapi"
	"github.com/platinummonkey/ratchet/pkg/httputil"
	"github.com/platinummonkey/ratchet/pkg/policyfile"
	"github.com/platinummonkey/ratchet/pkg/rbac"
	"github.com/platinummonkey/ratchet/pkg/rbac/redisstore"
	"github.com/platinummonkey/ratchet/pkg/rbac/sqlstore"
)

// maxRequestBytes caps request bodies. Policy payloads are small;
// anything larger is a mistake or abuse.
const maxRequestBytes = 1 << 20

func main() {
	logger := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	registry := prometheus.NewRegistry()
	manager := rbac.New(&rbac.Config{
		Storage:                  store,
		EnforceHierarchicalRoles: cfg.Engine.EnforceHierarchy,
		CachePermissions:         cfg.Engine.CacheEnabled,
		CacheSize:                cfg.Engine.CacheSize,
		CacheTTL:                 cfg.Engine.CacheTTL,
		Logger:                   logger,
		Metrics:                  rbac.NewMetrics(registry),
	})

	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize engine: %v", err)
	}
	defer manager.Close()
	logger.Infof("Storage backend %q ready", cfg.Storage.Backend)

	if cfg.PolicyFile != "" {
		file, err := policyfile.Load(cfg.PolicyFile)
		if err != nil {
			logger.Fatalf("Failed to load policy file: %v", err)
		}
		if err := file.Apply(ctx, manager); err != nil {
			logger.Fatalf("Failed to apply policy file: %v", err)
		}
		logger.Infof("Applied policy from %s (%d roles, %d users)", cfg.PolicyFile, len(file.Roles), len(file.Users))

		watcher, err := policyfile.NewWatcher(cfg.PolicyFile, manager, logger)
		if err != nil {
			logger.Fatalf("Failed to watch policy file: %v", err)
		}
		watcher.Start(ctx)
		defer watcher.Close()
	}

	router := mux.NewRouter()
	httpapi.NewHandlers(manager, logger).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	}
	if cfg.Server.RateLimitEnabled {
		limiter := httputil.NewRateLimiter(&httputil.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitBurst,
		})
		limiter.StartCleanup(ctx)
		middlewares = append(middlewares, httputil.RateLimitMiddleware(limiter, nil))
		logger.Infof("Rate limiting enabled: %d requests/min, burst %d", cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	}
	middlewares = append(middlewares, httputil.MaxBytesMiddleware(maxRequestBytes))
	handler := httputil.Chain(middlewares...)(router)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("Starting ratchet server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infof("Received signal %s, starting graceful shutdown", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}
	logger.Info("Server stopped")
}

// buildStore selects the storage backend from configuration. The
// manager owns the returned store and closes it on shutdown.
func buildStore(cfg *config.Config, logger *logrus.Logger) (rbac.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store := sqlstore.NewStore(db)
		store.SetLogger(logger)
		return store, nil
	case config.BackendRedis:
		rcfg := redisstore.DefaultConfig()
		rcfg.URL = cfg.Storage.RedisURL
		store, err := redisstore.New(rcfg)
		if err != nil {
			return nil, err
		}
		store.SetLogger(logger)
		return store, nil
	default:
		return rbac.NewMemoryStore(), nil
	}
}
