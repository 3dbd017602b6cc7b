package bootstrap

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
	"stockflow/internal/infrastructure/storage/memory"
)

// DemoBatches is a small grocery assortment dated relative to today: milk
// with staggered expiry, bread close to expiry, rice without expiry, and a
// low-stock coffee line.
func DemoBatches(today time.Time) []allocation.AddBatchInput {
	day := func(offset int) time.Time {
		y, m, d := today.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	}
	ptr := func(t time.Time) *time.Time { return &t }

	return []allocation.AddBatchInput{
		{ProductCode: "MILK-1L", Quantity: 120, PurchasePrice: types.MustMoney("0.89"), PurchaseDate: day(-10), ExpiryDate: ptr(day(4)), Supplier: "Alpine Dairy"},
		{ProductCode: "MILK-1L", Quantity: 200, PurchasePrice: types.MustMoney("0.85"), PurchaseDate: day(-3), ExpiryDate: ptr(day(11)), Supplier: "Alpine Dairy"},
		{ProductCode: "MILK-1L", Quantity: 80, PurchasePrice: types.MustMoney("0.92"), PurchaseDate: day(-1), ExpiryDate: ptr(day(11)), Supplier: "Valley Farms"},
		{ProductCode: "BREAD-WHT", Quantity: 30, PurchasePrice: types.MustMoney("1.20"), PurchaseDate: day(-2), ExpiryDate: ptr(day(1)), Supplier: "Corner Bakery"},
		{ProductCode: "BREAD-WHT", Quantity: 25, PurchasePrice: types.MustMoney("1.15"), PurchaseDate: day(-5), ExpiryDate: ptr(day(-1)), Supplier: "Corner Bakery"},
		{ProductCode: "RICE-5KG", Quantity: 60, PurchasePrice: types.MustMoney("7.40"), PurchaseDate: day(-40), Supplier: "Grain Co"},
		{ProductCode: "RICE-5KG", Quantity: 40, PurchasePrice: types.MustMoney("6.95"), PurchaseDate: day(-7), Supplier: "Grain Co"},
		{ProductCode: "COFFEE-250", Quantity: 8, PurchasePrice: types.MustMoney("4.10"), PurchaseDate: day(-20), ExpiryDate: ptr(day(160)), Supplier: "Roastery"},
	}
}

// LoadDemo writes the demo assortment straight into the store, bypassing the
// command layer so the session starts with nothing to undo. One rice batch
// gets a recorded sale so removal rules can be tried out.
func LoadDemo(ctx context.Context, store *memory.Store, today time.Time) error {
	var rice *batch.Batch
	for _, in := range DemoBatches(today) {
		b := batch.NewBatch(in.ProductCode, in.Quantity, in.PurchasePrice, in.PurchaseDate, in.ExpiryDate, in.Supplier)
		if err := store.Create(ctx, b); err != nil {
			return fmt.Errorf("load demo batch %s: %w", in.ProductCode, err)
		}
		if rice == nil && in.ProductCode == "RICE-5KG" {
			rice = b
		}
	}

	if err := store.ConsumeRemaining(ctx, rice.ID, 5); err != nil {
		return fmt.Errorf("load demo sale: %w", err)
	}
	if err := store.AdjustChannelStock(ctx, rice.ID, batch.ChannelPhysical, 5); err != nil {
		return fmt.Errorf("load demo sale: %w", err)
	}
	if err := store.RecordSale(ctx, rice.ID, batch.ChannelPhysical, 5); err != nil {
		return fmt.Errorf("load demo sale: %w", err)
	}
	return nil
}
