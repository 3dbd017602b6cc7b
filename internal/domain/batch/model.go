// Package batch provides the batch ledger entities and the Ledger contract.
package batch

import (
	"fmt"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Batch is one received quantity of a product.
// RemainingQuantity is never negative and never exceeds ReceivedQuantity.
type Batch struct {
	ID                id.ID          `db:"id" json:"id"`
	ProductCode       string         `db:"product_code" json:"productCode"`
	ReceivedQuantity  types.Quantity `db:"received_quantity" json:"receivedQuantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`
	PurchasePrice     types.Money    `db:"purchase_price" json:"purchasePrice"`
	PurchaseDate      time.Time      `db:"purchase_date" json:"purchaseDate"`
	ExpiryDate        *time.Time     `db:"expiry_date" json:"expiryDate,omitempty"`
	Supplier          string         `db:"supplier" json:"supplier,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
}

// NewBatch creates a batch with a fresh identity and full remaining stock.
// Dates are kept as calendar days.
func NewBatch(productCode string, quantity types.Quantity, price types.Money, purchaseDate time.Time, expiryDate *time.Time, supplier string) *Batch {
	if expiryDate != nil {
		d := types.Day(*expiryDate)
		expiryDate = &d
	}
	if !purchaseDate.IsZero() {
		purchaseDate = types.Day(purchaseDate)
	}
	return &Batch{
		ID:                id.New(),
		ProductCode:       strings.TrimSpace(productCode),
		ReceivedQuantity:  quantity,
		RemainingQuantity: quantity,
		PurchasePrice:     price,
		PurchaseDate:      purchaseDate,
		ExpiryDate:        expiryDate,
		Supplier:          strings.TrimSpace(supplier),
		CreatedAt:         time.Now().UTC(),
	}
}

// Validate checks the receipt invariants. now is the reference for
// "purchase date not in the future".
func (b *Batch) Validate(now time.Time) error {
	if b.ProductCode == "" {
		return apperror.NewValidationField("productCode", "product code is required")
	}
	if !b.ReceivedQuantity.IsPositive() {
		return apperror.NewValidationField("quantity", "quantity must be positive").
			WithDetail("value", b.ReceivedQuantity)
	}
	if !b.PurchasePrice.IsPositive() {
		return apperror.NewValidationField("purchasePrice", "purchase price must be positive").
			WithDetail("value", b.PurchasePrice.String())
	}
	if b.PurchaseDate.IsZero() {
		return apperror.NewValidationField("purchaseDate", "purchase date is required")
	}
	if types.DaysBetween(now, b.PurchaseDate) > 0 {
		return apperror.NewValidationField("purchaseDate", "purchase date cannot be in the future").
			WithDetail("value", b.PurchaseDate.Format(time.DateOnly))
	}
	if b.ExpiryDate != nil && types.DaysBetween(b.PurchaseDate, *b.ExpiryDate) < 0 {
		return apperror.NewValidationField("expiryDate", "expiry date cannot precede purchase date").
			WithDetail("purchaseDate", b.PurchaseDate.Format(time.DateOnly)).
			WithDetail("expiryDate", b.ExpiryDate.Format(time.DateOnly))
	}
	return nil
}

// HasStock reports whether any units remain.
func (b *Batch) HasStock() bool {
	return b.RemainingQuantity.IsPositive()
}

// IssuedQuantity is what has left the batch towards channels.
func (b *Batch) IssuedQuantity() types.Quantity {
	return b.ReceivedQuantity - b.RemainingQuantity
}

// IsExpired reports whether the expiry date lies strictly before the calendar
// day of now, read in now's zone. A batch is sellable through its expiry day.
func (b *Batch) IsExpired(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return types.DaysBetween(now, *b.ExpiryDate) < 0
}

// DaysUntilExpiry returns whole days from now until expiry, or -1 without expiry.
// Already expired batches return 0.
func (b *Batch) DaysUntilExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return -1
	}
	days := types.DaysBetween(now, *b.ExpiryDate)
	if days < 0 {
		return 0
	}
	return days
}

// ExpiresBefore orders two batches by expiry; a batch without expiry sorts after
// every dated batch.
func (b *Batch) ExpiresBefore(other *Batch) bool {
	switch {
	case b.ExpiryDate == nil:
		return false
	case other.ExpiryDate == nil:
		return true
	default:
		return types.Day(*b.ExpiryDate).Before(types.Day(*other.ExpiryDate))
	}
}

// SameExpiry reports whether both batches expire on the same day (or both never).
func (b *Batch) SameExpiry(other *Batch) bool {
	if b.ExpiryDate == nil || other.ExpiryDate == nil {
		return b.ExpiryDate == nil && other.ExpiryDate == nil
	}
	return types.Day(*b.ExpiryDate).Equal(types.Day(*other.ExpiryDate))
}

// Label is the short human form used in rationale and console output.
func (b *Batch) Label() string {
	return fmt.Sprintf("batch %s", id.Short(b.ID))
}

// Channel is a stock-holding destination downstream of the ledger.
type Channel string

const (
	// ChannelPhysical is the store shelf.
	ChannelPhysical Channel = "physical"
	// ChannelOnline is the online fulfillment pool.
	ChannelOnline Channel = "online"
)

// ParseChannel accepts the canonical names and a few console aliases.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "physical", "store", "shelf":
		return ChannelPhysical, nil
	case "online", "web":
		return ChannelOnline, nil
	}
	return "", apperror.NewValidationField("channel", "channel must be 'physical' or 'online'").
		WithDetail("value", s)
}

// ChannelStock is the per-batch quantity held in each channel.
type ChannelStock struct {
	BatchID          id.ID          `db:"batch_id" json:"batchId"`
	PhysicalQuantity types.Quantity `db:"physical_quantity" json:"physicalQuantity"`
	OnlineQuantity   types.Quantity `db:"online_quantity" json:"onlineQuantity"`
}

// Quantity returns the quantity held in ch.
func (c ChannelStock) Quantity(ch Channel) types.Quantity {
	if ch == ChannelOnline {
		return c.OnlineQuantity
	}
	return c.PhysicalQuantity
}

// Total is the sum across channels.
func (c ChannelStock) Total() types.Quantity {
	return c.PhysicalQuantity + c.OnlineQuantity
}

// Usage aggregates what blocks a batch from being removed.
type Usage struct {
	PhysicalQuantity types.Quantity `db:"physical_quantity" json:"physicalQuantity"`
	OnlineQuantity   types.Quantity `db:"online_quantity" json:"onlineQuantity"`
	HasSales         bool           `db:"has_sales" json:"hasSales"`
}

// IsUntouched reports whether nothing downstream references the batch.
func (u Usage) IsUntouched() bool {
	return u.PhysicalQuantity.IsZero() && u.OnlineQuantity.IsZero() && !u.HasSales
}
