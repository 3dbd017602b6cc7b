// Package main seeds the database with the demo assortment through the
// allocation service, so every receipt lands in the audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockflow/internal/bootstrap"
	"stockflow/internal/config"
	appctx "stockflow/internal/core/context"
	"stockflow/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Service:     "stockflow-seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("STOCKFLOW_CONFIG"))
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	cfg.Database.ApplySchema = true

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.StartTrace(ctx, appctx.OriginSeed)
	ctx = appctx.WithOperator(ctx, &appctx.Operator{Subject: "seed", Name: "demo seeder"})

	backend, err := bootstrap.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer backend.Close()
	log.Info("connected to database, schema applied")

	services, err := bootstrap.NewServices(cfg.Allocation, backend, nil)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "false" {
		log.Info("SEED_DEMO_DATA=false; schema only")
		return
	}

	existing, err := backend.Ledger.ListAvailable(ctx, "MILK-1L")
	if err != nil {
		log.Fatalw("failed to check existing data", "error", err)
	}
	if len(existing) > 0 {
		log.Infow("demo data already present, skipping", "milk_batches", len(existing))
		return
	}

	var added int
	for _, in := range bootstrap.DemoBatches(time.Now()) {
		out, err := services.Allocation.AddBatch(ctx, in)
		if err != nil {
			log.Fatalw("failed to add batch", "product", in.ProductCode, "error", err)
		}
		if !out.Success {
			log.Warnw("batch rejected", "product", in.ProductCode, "reason", out.Message)
			continue
		}
		added++
	}

	log.Infow("seeding completed successfully", "batches", added)
}
