// Package watch runs the periodic stock sweep: batches about to expire and
// products running low are reported to the log.
package watch

import (
	"context"
	"fmt"
	"time"

	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/reports"
	"stockflow/pkg/logger"
)

// Reporter is the subset of the reports service the watcher needs.
type Reporter interface {
	LowStock(ctx context.Context, filter reports.LowStockFilter) (*reports.LowStockReport, error)
	ExpiringSoon(ctx context.Context, filter reports.ExpiringFilter) (*reports.ExpiringReport, error)
}

// Config holds sweep parameters.
type Config struct {
	Interval          time.Duration
	LowStockThreshold types.Quantity
	ExpiringDays      int
}

// Summary is what one sweep found.
type Summary struct {
	Expired       int
	Expiring      int
	AtRiskUnits   types.Quantity
	LowStock      int
	LowStockCodes []string
}

// Watcher sweeps the ledger on a ticker until its context is cancelled.
type Watcher struct {
	reports Reporter
	cfg     Config
	log     *logger.Logger

	// AfterSweep runs after every sweep, e.g. to log pool stats.
	AfterSweep func(ctx context.Context)
}

func New(r Reporter, cfg Config, log *logger.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Watcher{
		reports: r,
		cfg:     cfg,
		log:     log.WithComponent("watch"),
	}
}

// Run sweeps once immediately and then on every tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	ctx = appctx.StartTrace(ctx, appctx.OriginWorker)
	if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		w.log.Errorw("stock sweep failed", "error", err)
	}
	if w.AfterSweep != nil {
		w.AfterSweep(ctx)
	}
}

// Sweep runs both reports once and logs each finding.
func (w *Watcher) Sweep(ctx context.Context) (Summary, error) {
	var sum Summary

	expiring, err := w.reports.ExpiringSoon(ctx, reports.ExpiringFilter{
		Days:           w.cfg.ExpiringDays,
		IncludeExpired: true,
	})
	if err != nil {
		return sum, fmt.Errorf("expiring report: %w", err)
	}
	for _, it := range expiring.Items {
		if it.Expired {
			sum.Expired++
			w.log.Warnw("expired batch still holds stock",
				"batch_id", it.BatchID.String(),
				"product_code", it.ProductCode,
				"remaining", it.RemainingQuantity,
				"expiry_date", it.ExpiryDate.Format(time.DateOnly),
			)
			continue
		}
		sum.Expiring++
		w.log.Infow("batch expiring soon",
			"batch_id", it.BatchID.String(),
			"product_code", it.ProductCode,
			"remaining", it.RemainingQuantity,
			"days_left", it.DaysLeft,
		)
	}
	sum.AtRiskUnits = expiring.TotalQuantity

	low, err := w.reports.LowStock(ctx, reports.LowStockFilter{Threshold: w.cfg.LowStockThreshold})
	if err != nil {
		return sum, fmt.Errorf("low stock report: %w", err)
	}
	for _, it := range low.Items {
		sum.LowStock++
		sum.LowStockCodes = append(sum.LowStockCodes, it.ProductCode)
		w.log.Warnw("product running low",
			"product_code", it.ProductCode,
			"remaining", it.TotalRemaining,
			"batches", it.BatchCount,
			"threshold", w.cfg.LowStockThreshold,
		)
	}

	w.log.Infow("stock sweep complete",
		"expired", sum.Expired,
		"expiring", sum.Expiring,
		"at_risk_units", sum.AtRiskUnits,
		"low_stock", sum.LowStock,
	)
	return sum, nil
}
