// Package bootstrap assembles storage and services from configuration for the
// server, the console and the seeder.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/batch"
	"stockflow/internal/domain/reports"
	"stockflow/internal/infrastructure/storage/memory"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/ledger_repo"
	"stockflow/internal/infrastructure/storage/postgres/report_repo"
	"stockflow/pkg/logger"
)

// Backend is one storage choice with everything the services need from it.
type Backend struct {
	Ledger  batch.Ledger
	Tx      tx.Manager
	Reports reports.Repository
	Audit   audit.Sink

	// Exactly one of these is set.
	Pool   *postgres.Pool
	TxM    *postgres.TxManager
	Memory *memory.Store
}

// OpenPostgres connects to the database named by cfg.Database.URL.
func OpenPostgres(ctx context.Context, cfg config.Config) (*Backend, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is not configured (set DATABASE_URL or use --memory)")
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.StatementTimeout > 0 {
		poolCfg.StatementTimeout = cfg.Database.StatementTimeout
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Database.ApplySchema {
		if err := postgres.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	txm := postgres.NewTxManager(pool)
	auditStore, err := postgres.NewAuditStore(txm)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit store: %w", err)
	}

	return &Backend{
		Ledger:  ledger_repo.NewBatchRepo(txm),
		Tx:      txm,
		Reports: report_repo.NewReportRepo(txm),
		Audit:   auditStore,
		Pool:    pool,
		TxM:     txm,
	}, nil
}

// OpenMemory creates an empty in-process backend. Audit records go to the
// debug log.
func OpenMemory() *Backend {
	store := memory.NewStore()
	return &Backend{
		Ledger:  store,
		Tx:      store,
		Reports: store,
		Audit:   LogSink(),
		Memory:  store,
	}
}

// Close releases the database pool, if any.
func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// LogSink writes audit records to the context logger at debug level.
func LogSink() audit.Sink {
	return audit.SinkFunc(func(ctx context.Context, r audit.Record) error {
		logger.Debug(ctx, "audit",
			"command", r.Command,
			"action", string(r.Action),
			"batch_id", r.BatchID.String(),
			"success", r.Success,
			"code", r.Code,
			"message", r.Message,
		)
		return nil
	})
}

// Services are the two domain services every entry point uses.
type Services struct {
	Allocation *allocation.Service
	Reports    *reports.Service
}

// NewServices builds the allocation and report services over b. A nil now
// means wall-clock time.
func NewServices(cfg config.AllocationConfig, b *Backend, now func() time.Time) (*Services, error) {
	if now == nil {
		now = time.Now
	}

	strategy, err := allocation.StrategyByName(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	selector := allocation.NewSelector(strategy,
		allocation.WithCriticalDays(cfg.CriticalDays),
		allocation.WithSelectorClock(now),
	)

	opts := []allocation.Option{
		allocation.WithClock(now),
		allocation.WithTxManager(b.Tx),
		allocation.WithAudit(b.Audit),
		allocation.WithSkipExpired(cfg.SkipExpired),
	}
	if cfg.Eligibility != "" {
		rule, err := allocation.CompileEligibility(cfg.Eligibility)
		if err != nil {
			return nil, fmt.Errorf("compile eligibility rule: %w", err)
		}
		opts = append(opts, allocation.WithEligibility(rule))
	}

	return &Services{
		Allocation: allocation.NewService(b.Ledger, selector, opts...),
		Reports:    reports.NewService(b.Reports).WithClock(now),
	}, nil
}
