// Package main is the entry point for the stockflow background watcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stockflow/internal/bootstrap"
	"stockflow/internal/config"
	"stockflow/internal/core/types"
	"stockflow/internal/watch"
	"stockflow/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("STOCKFLOW_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
		Service:     "stockflow-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockflow watcher")

	backend, err := bootstrap.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer backend.Close()

	services, err := bootstrap.NewServices(cfg.Allocation, backend, nil)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}

	watcher := watch.New(services.Reports, watch.Config{
		Interval:          cfg.Watch.Interval,
		LowStockThreshold: types.Quantity(cfg.Watch.LowStockThreshold),
		ExpiringDays:      cfg.Watch.ExpiringDays,
	}, log)
	watcher.AfterSweep = backend.Pool.LogStats

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down watcher...")
	cancel()

	wg.Wait()
	log.Info("watcher stopped")
}
