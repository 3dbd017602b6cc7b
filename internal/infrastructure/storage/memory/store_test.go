package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
	"stockflow/internal/domain/reports"
)

func newBatch(product string, qty types.Quantity, purchased time.Time, expiry *time.Time) *batch.Batch {
	return batch.NewBatch(product, qty, types.MustMoney("1.00"), purchased, expiry, "")
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestStore_ListAvailableOrdersByPurchase(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	late := newBatch("X", 5, date(2025, 2, 1), nil)
	early := newBatch("X", 5, date(2025, 1, 1), nil)
	empty := newBatch("X", 0, date(2024, 1, 1), nil)
	other := newBatch("Y", 5, date(2024, 1, 1), nil)
	for _, b := range []*batch.Batch{late, early, empty, other} {
		require.NoError(t, s.Create(ctx, b))
	}

	got, err := s.ListAvailable(ctx, "X")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)
}

func TestStore_ConditionalRemainingUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("X", 10, date(2025, 1, 1), nil)
	require.NoError(t, s.Create(ctx, b))

	require.NoError(t, s.ConsumeRemaining(ctx, b.ID, 7))
	err := s.ConsumeRemaining(ctx, b.ID, 4)
	assert.True(t, apperror.IsConcurrentModification(err))

	err = s.RestoreRemaining(ctx, b.ID, 8)
	assert.True(t, apperror.IsConcurrentModification(err))
	require.NoError(t, s.RestoreRemaining(ctx, b.ID, 7))

	got, _ := s.GetByID(ctx, b.ID)
	assert.EqualValues(t, 10, got.RemainingQuantity)
}

func TestStore_AdjustChannelStockUpsertsAndGuardsNegative(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("X", 10, date(2025, 1, 1), nil)
	require.NoError(t, s.Create(ctx, b))

	require.NoError(t, s.AdjustChannelStock(ctx, b.ID, batch.ChannelOnline, 4))
	require.NoError(t, s.AdjustChannelStock(ctx, b.ID, batch.ChannelOnline, -1))
	assert.Error(t, s.AdjustChannelStock(ctx, b.ID, batch.ChannelPhysical, -1))

	cs, err := s.GetChannelStock(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cs.OnlineQuantity)
	assert.EqualValues(t, 0, cs.PhysicalQuantity)
}

func TestStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("X", 10, date(2025, 1, 1), nil)
	require.NoError(t, s.Create(ctx, b))

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.ConsumeRemaining(ctx, b.ID, 4))
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, s.AdjustChannelStock(ctx, b.ID, batch.ChannelPhysical, 4))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, _ := s.GetByID(ctx, b.ID)
	assert.EqualValues(t, 10, got.RemainingQuantity)
	cs, _ := s.GetChannelStock(ctx, b.ID)
	assert.Zero(t, cs.Total())
}

func TestStore_RollbackKeepsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("X", 10, date(2025, 1, 1), nil)
	require.NoError(t, s.Create(ctx, b))

	other := newBatch("Y", 5, date(2025, 1, 2), nil)
	inTx := make(chan struct{})
	created := make(chan error, 1)

	go func() {
		<-inTx
		created <- s.Create(context.Background(), other)
	}()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.ConsumeRemaining(ctx, b.ID, 4))
		close(inTx)
		// The outside write must wait for this transaction to finish.
		select {
		case err := <-created:
			t.Errorf("write outside the transaction finished early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, <-created)

	got, err := s.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.RemainingQuantity)
	first, _ := s.GetByID(ctx, b.ID)
	assert.EqualValues(t, 10, first.RemainingQuantity)
}

func TestStore_FailOn(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	s.FailOn(OpCreate, boom)
	assert.ErrorIs(t, s.Create(ctx, newBatch("X", 1, date(2025, 1, 1), nil)), boom)

	s.FailOn(OpCreate, nil)
	assert.NoError(t, s.Create(ctx, newBatch("X", 1, date(2025, 1, 1), nil)))
}

func TestStore_UsageAndSales(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("X", 10, date(2025, 1, 1), nil)
	require.NoError(t, s.Create(ctx, b))

	u, err := s.GetUsage(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, u.IsUntouched())

	require.NoError(t, s.AdjustChannelStock(ctx, b.ID, batch.ChannelPhysical, 3))
	require.NoError(t, s.RecordSale(ctx, b.ID, batch.ChannelPhysical, 3))
	assert.Error(t, s.RecordSale(ctx, b.ID, batch.ChannelPhysical, 1))

	u, err = s.GetUsage(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, u.HasSales)
	assert.Zero(t, u.PhysicalQuantity)
}

func TestStore_Reports(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	asOf := date(2025, 1, 1)
	for _, b := range []*batch.Batch{
		newBatch("LOW", 3, date(2024, 12, 1), ptr(date(2025, 1, 5))),
		newBatch("LOW", 2, date(2024, 12, 2), ptr(date(2025, 3, 1))),
		newBatch("HIGH", 50, date(2024, 12, 1), ptr(date(2025, 1, 31))),
		newBatch("GONE", 4, date(2024, 11, 1), ptr(date(2024, 12, 20))),
	} {
		require.NoError(t, s.Create(ctx, b))
	}

	low, err := s.GetLowStock(ctx, reports.LowStockFilter{Threshold: 5})
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "GONE", low[0].ProductCode)
	assert.Equal(t, reports.LowStockItem{ProductCode: "LOW", TotalRemaining: 5, BatchCount: 2}, low[1])

	exp, err := s.GetExpiring(ctx, reports.ExpiringFilter{Days: 30, AsOfDate: asOf})
	require.NoError(t, err)
	require.Len(t, exp, 2)
	assert.Equal(t, "LOW", exp[0].ProductCode)
	assert.Equal(t, "HIGH", exp[1].ProductCode)

	exp, err = s.GetExpiring(ctx, reports.ExpiringFilter{Days: 30, AsOfDate: asOf, IncludeExpired: true})
	require.NoError(t, err)
	require.Len(t, exp, 3)
	assert.Equal(t, "GONE", exp[0].ProductCode)
}
