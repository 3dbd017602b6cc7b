package reports

import (
	"context"
)

// Repository defines report data access interface.
type Repository interface {
	// GetLowStock returns product totals at or below filter.Threshold, lowest first.
	GetLowStock(ctx context.Context, filter LowStockFilter) ([]LowStockItem, error)

	// GetExpiring returns batches with stock whose expiry falls inside the
	// window, earliest first. DaysLeft and Expired are filled by the service.
	GetExpiring(ctx context.Context, filter ExpiringFilter) ([]ExpiringItem, error)
}
