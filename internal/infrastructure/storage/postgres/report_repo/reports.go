// Package report_repo provides PostgreSQL implementations for report repositories.
package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/domain/reports"
	"stockflow/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ReportRepo) lowStockQuery(filter reports.LowStockFilter) squirrel.SelectBuilder {
	q := r.builder.
		Select(
			"product_code",
			"SUM(remaining_quantity) AS total_remaining",
			"COUNT(*) FILTER (WHERE remaining_quantity > 0) AS batch_count",
		).
		From("batches").
		GroupBy("product_code").
		Having(squirrel.Expr("SUM(remaining_quantity) <= ?", filter.Threshold)).
		OrderBy("total_remaining", "product_code")

	if len(filter.ProductCodes) > 0 {
		q = q.Where(squirrel.Eq{"product_code": filter.ProductCodes})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// GetLowStock aggregates remaining quantity per product.
func (r *ReportRepo) GetLowStock(ctx context.Context, filter reports.LowStockFilter) ([]reports.LowStockItem, error) {
	sql, args, err := r.lowStockQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build low stock: %w", err)
	}

	items := make([]reports.LowStockItem, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("low stock report: %w", err)
	}
	return items, nil
}

func (r *ReportRepo) expiringQuery(filter reports.ExpiringFilter) squirrel.SelectBuilder {
	q := r.builder.
		Select("id", "product_code", "supplier", "remaining_quantity", "expiry_date").
		From("batches").
		Where("expiry_date IS NOT NULL").
		Where(squirrel.Gt{"remaining_quantity": 0}).
		Where(squirrel.LtOrEq{"expiry_date": filter.WindowEnd()}).
		OrderBy("expiry_date", "product_code")

	if !filter.IncludeExpired {
		q = q.Where(squirrel.GtOrEq{"expiry_date": filter.AsOfDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// GetExpiring lists batches with stock whose expiry falls inside the window.
func (r *ReportRepo) GetExpiring(ctx context.Context, filter reports.ExpiringFilter) ([]reports.ExpiringItem, error) {
	sql, args, err := r.expiringQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expiring: %w", err)
	}

	items := make([]reports.ExpiringItem, 0)
	err = r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("expiring report: %w", err)
	}
	return items, nil
}
