package reports

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
)

const (
	DefaultLowStockThreshold types.Quantity = 10
	DefaultExpiringDays                     = 30

	defaultLimit = 100
	maxLimit     = 1000
)

// Service provides report generation operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new reports service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// LowStock lists products whose total remaining quantity is at or below the threshold.
func (s *Service) LowStock(ctx context.Context, filter LowStockFilter) (*LowStockReport, error) {
	if filter.Threshold.IsNegative() {
		return nil, apperror.NewValidationField("threshold", "threshold cannot be negative").
			WithDetail("value", filter.Threshold)
	}
	filter.Limit = clampLimit(filter.Limit)

	items, err := s.repo.GetLowStock(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get low stock report: %w", err)
	}

	return &LowStockReport{
		Threshold:   filter.Threshold,
		GeneratedAt: s.now().UTC(),
		Items:       items,
		TotalItems:  len(items),
	}, nil
}

// ExpiringSoon lists batches with stock that expire within the day window.
func (s *Service) ExpiringSoon(ctx context.Context, filter ExpiringFilter) (*ExpiringReport, error) {
	if filter.Days < 0 {
		return nil, apperror.NewValidationField("days", "days cannot be negative").
			WithDetail("value", filter.Days)
	}
	if filter.AsOfDate.IsZero() {
		filter.AsOfDate = s.now()
	}
	filter.AsOfDate = types.Day(filter.AsOfDate)
	filter.Limit = clampLimit(filter.Limit)

	items, err := s.repo.GetExpiring(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get expiring report: %w", err)
	}

	report := &ExpiringReport{
		AsOfDate: filter.AsOfDate,
		Days:     filter.Days,
		Items:    items,
	}
	for i := range report.Items {
		it := &report.Items[i]
		days := types.DaysBetween(filter.AsOfDate, it.ExpiryDate)
		it.Expired = days < 0
		if days < 0 {
			days = 0
		}
		it.DaysLeft = days
		report.TotalQuantity += it.RemainingQuantity
	}
	report.TotalItems = len(report.Items)
	return report, nil
}

// WindowEnd is the last day (inclusive) covered by an expiring report.
func (f ExpiringFilter) WindowEnd() time.Time {
	return types.Day(f.AsOfDate).AddDate(0, 0, f.Days)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
