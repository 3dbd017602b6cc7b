package memory

import (
	"context"
	"slices"
	"strings"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/reports"
)

func (s *Store) GetLowStock(_ context.Context, filter reports.LowStockFilter) ([]reports.LowStockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*reports.LowStockItem)
	for _, b := range s.data.batches {
		if len(filter.ProductCodes) > 0 && !slices.Contains(filter.ProductCodes, b.ProductCode) {
			continue
		}
		it, ok := totals[b.ProductCode]
		if !ok {
			it = &reports.LowStockItem{ProductCode: b.ProductCode}
			totals[b.ProductCode] = it
		}
		it.TotalRemaining += b.RemainingQuantity
		if b.HasStock() {
			it.BatchCount++
		}
	}

	items := make([]reports.LowStockItem, 0, len(totals))
	for _, it := range totals {
		if it.TotalRemaining <= filter.Threshold {
			items = append(items, *it)
		}
	}
	slices.SortFunc(items, func(a, b reports.LowStockItem) int {
		if a.TotalRemaining != b.TotalRemaining {
			return compareQty(a.TotalRemaining, b.TotalRemaining)
		}
		return strings.Compare(a.ProductCode, b.ProductCode)
	})
	return page(items, filter.Offset, filter.Limit), nil
}

func (s *Store) GetExpiring(_ context.Context, filter reports.ExpiringFilter) ([]reports.ExpiringItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := filter.WindowEnd()
	items := make([]reports.ExpiringItem, 0)
	for _, b := range s.data.batches {
		if b.ExpiryDate == nil || !b.HasStock() {
			continue
		}
		if types.Day(*b.ExpiryDate).After(end) {
			continue
		}
		if !filter.IncludeExpired && b.IsExpired(filter.AsOfDate) {
			continue
		}
		items = append(items, reports.ExpiringItem{
			BatchID:           b.ID,
			ProductCode:       b.ProductCode,
			Supplier:          b.Supplier,
			RemainingQuantity: b.RemainingQuantity,
			ExpiryDate:        *b.ExpiryDate,
		})
	}
	slices.SortFunc(items, func(a, b reports.ExpiringItem) int {
		if c := a.ExpiryDate.Compare(b.ExpiryDate); c != 0 {
			return c
		}
		return strings.Compare(a.ProductCode, b.ProductCode)
	})
	return page(items, filter.Offset, filter.Limit), nil
}

func compareQty(a, b types.Quantity) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
