// Package main is the entry point for the stockflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockflow/internal/bootstrap"
	"stockflow/internal/config"
	"stockflow/internal/domain/auth"
	"stockflow/internal/infrastructure/cache"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/platform/observability"
	"stockflow/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("STOCKFLOW_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
		Service:     "stockflow-server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting stockflow server", "version", version, "env", cfg.Env)

	// --- Tracing ---
	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	// --- Storage ---
	var backend *bootstrap.Backend
	if os.Getenv("STOCKFLOW_MEMORY") == "true" {
		backend = bootstrap.OpenMemory()
		if err := bootstrap.LoadDemo(ctx, backend.Memory, time.Now()); err != nil {
			log.Fatalw("failed to load demo data", "error", err)
		}
		log.Warn("serving in-memory ledger; data is lost on exit")
	} else {
		backend, err = bootstrap.OpenPostgres(ctx, cfg)
		if err != nil {
			log.Fatalw("failed to open database", "error", err)
		}
		log.Infow("database connection established", "schema_applied", cfg.Database.ApplySchema)
	}
	defer backend.Close()

	services, err := bootstrap.NewServices(cfg.Allocation, backend, nil)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}
	log.Infow("allocation service ready",
		"strategy", services.Allocation.Selector().Strategy().Name(),
		"skip_expired", cfg.Allocation.SkipExpired,
		"eligibility", cfg.Allocation.Eligibility,
	)

	routerCfg := v1.RouterConfig{
		Allocation:   services.Allocation,
		Reports:      services.Reports,
		Logger:       log,
		HealthChecks: map[string]handlers.Pinger{},
		Version:      version,
		Debug:        cfg.IsDevelopment(),
	}
	if backend.TxM != nil {
		routerCfg.HealthChecks["database"] = backend.TxM
	}
	if backend.Pool != nil {
		pool := backend.Pool
		routerCfg.HealthInfo = func() any { return map[string]any{"database": pool.Stats()} }
	}

	// --- JWT ---
	if cfg.Auth.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		if cfg.Auth.Issuer != "" {
			jwtCfg.Issuer = cfg.Auth.Issuer
		}
		jwtService, err := auth.NewJWTService(jwtCfg)
		if err != nil {
			log.Fatalw("failed to create jwt service", "error", err)
		}
		routerCfg.TokenValidator = jwtService
		log.Info("bearer auth enabled")
	} else {
		log.Warn("JWT_SECRET not set; API accepts anonymous requests")
	}

	// --- Idempotency ---
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatalw("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer client.Close()
		routerCfg.Idempotency = cache.NewIdempotencyStore(client, cfg.Redis.ResponseTTL, 0)
		routerCfg.HealthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		log.Infow("idempotency keys enabled", "redis", cfg.Redis.Addr)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if backend.Pool != nil {
		backend.Pool.LogStats(ctx)
	}

	log.Info("server stopped")
}
