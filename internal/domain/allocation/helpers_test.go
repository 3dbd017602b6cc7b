package allocation

import (
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

var testNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

// mkBatch builds a batch of product X bought for 1.00.
func mkBatch(remaining types.Quantity, purchased string, expiry string) batch.Batch {
	b := batch.Batch{
		ID:                id.New(),
		ProductCode:       "X",
		ReceivedQuantity:  remaining,
		RemainingQuantity: remaining,
		PurchasePrice:     types.MustMoney("1.00"),
		PurchaseDate:      day(purchased),
	}
	if expiry != "" {
		b.ExpiryDate = dayPtr(expiry)
	}
	return b
}
