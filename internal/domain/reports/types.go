// Package reports provides read-only stock projections.
package reports

import (
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// --- Low Stock Report ---

// LowStockFilter defines filter for the low-stock report.
type LowStockFilter struct {
	// Threshold - products whose total remaining is at or below it are listed
	Threshold types.Quantity

	// ProductCodes restricts the report; empty means all products
	ProductCodes []string

	// Pagination
	Limit  int
	Offset int
}

// LowStockItem represents one product in the low-stock report.
type LowStockItem struct {
	ProductCode    string         `db:"product_code" json:"productCode"`
	TotalRemaining types.Quantity `db:"total_remaining" json:"totalRemaining"`
	BatchCount     int            `db:"batch_count" json:"batchCount"`
}

// LowStockReport represents the full low-stock report.
type LowStockReport struct {
	Threshold   types.Quantity `json:"threshold"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []LowStockItem `json:"items"`
	TotalItems  int            `json:"totalItems"`
}

// --- Expiring Soon Report ---

// ExpiringFilter defines filter for the expiring-soon report.
type ExpiringFilter struct {
	// Days - window ahead of AsOfDate
	Days int

	// AsOfDate - report date (defaults to today)
	AsOfDate time.Time

	// IncludeExpired also lists batches already past expiry that still hold stock
	IncludeExpired bool

	Limit  int
	Offset int
}

// ExpiringItem represents one batch in the expiring-soon report.
type ExpiringItem struct {
	BatchID           id.ID          `db:"id" json:"batchId"`
	ProductCode       string         `db:"product_code" json:"productCode"`
	Supplier          string         `db:"supplier" json:"supplier,omitempty"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`
	ExpiryDate        time.Time      `db:"expiry_date" json:"expiryDate"`
	DaysLeft          int            `db:"-" json:"daysLeft"`
	Expired           bool           `db:"-" json:"expired"`
}

// ExpiringReport represents the full expiring-soon report.
type ExpiringReport struct {
	AsOfDate      time.Time      `json:"asOfDate"`
	Days          int            `json:"days"`
	Items         []ExpiringItem `json:"items"`
	TotalItems    int            `json:"totalItems"`
	TotalQuantity types.Quantity `json:"totalQuantity"`
}
