// Package postgres provides the PostgreSQL ledger infrastructure: connection
// pool, context-carried transactions, schema and the audit log.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockflow/pkg/logger"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout bounds every statement server-side. Issue holds row
	// locks on a product's batches, so a stuck statement blocks the product.
	StatementTimeout time.Duration
}

// DefaultPoolConfig returns defaults sized for a single store's API server.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:              dsn,
		ApplicationName:  "stockflow",
		MaxConns:         10,
		MinConns:         2,
		MaxConnLifetime:  time.Hour,
		MaxConnIdleTime:  30 * time.Minute,
		StatementTimeout: 5 * time.Second,
	}
}

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// parsePoolConfig turns cfg into a pgxpool config without connecting.
// Session settings travel as startup parameters, so new connections need
// no extra round-trip.
func parsePoolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= pc.MaxConns {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	params := pc.ConnConfig.RuntimeParams
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	// Expiry dates are DATE columns compared against UTC days.
	params["timezone"] = "UTC"
	return pc, nil
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pc, err := parsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info(ctx, "database pool ready",
		"max_conns", pc.MaxConns,
		"statement_timeout", cfg.StatementTimeout,
	)
	return &Pool{Pool: pool}, nil
}

// PoolStats is a snapshot of pool usage, reported by /health/info.
type PoolStats struct {
	TotalConns      int32         `json:"totalConns"`
	AcquiredConns   int32         `json:"acquiredConns"`
	IdleConns       int32         `json:"idleConns"`
	MaxConns        int32         `json:"maxConns"`
	AcquireCount    int64         `json:"acquireCount"`
	EmptyAcquires   int64         `json:"emptyAcquires"`
	CanceledAcquire int64         `json:"canceledAcquires"`
	AcquireDuration time.Duration `json:"acquireDuration"`
}

// Saturated reports whether every connection was checked out.
func (s PoolStats) Saturated() bool {
	return s.MaxConns > 0 && s.AcquiredConns >= s.MaxConns
}

// Stats extracts statistics from the pool.
func (p *Pool) Stats() PoolStats {
	st := p.Pool.Stat()
	return PoolStats{
		TotalConns:      st.TotalConns(),
		AcquiredConns:   st.AcquiredConns(),
		IdleConns:       st.IdleConns(),
		MaxConns:        st.MaxConns(),
		AcquireCount:    st.AcquireCount(),
		EmptyAcquires:   st.EmptyAcquireCount(),
		CanceledAcquire: st.CanceledAcquireCount(),
		AcquireDuration: st.AcquireDuration(),
	}
}

// LogStats logs pool statistics; a saturated pool is logged as a warning.
func (p *Pool) LogStats(ctx context.Context) {
	s := p.Stats()
	kv := []any{
		"total", s.TotalConns,
		"acquired", s.AcquiredConns,
		"idle", s.IdleConns,
		"max", s.MaxConns,
		"empty_acquires", s.EmptyAcquires,
	}
	if s.Saturated() {
		logger.Warn(ctx, "database pool saturated", kv...)
		return
	}
	logger.Debug(ctx, "database pool stats", kv...)
}
