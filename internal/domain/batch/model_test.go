package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
)

func zone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dated(purchased, expires string) *Batch {
	var expiry *time.Time
	if expires != "" {
		e := date(expires)
		expiry = &e
	}
	return NewBatch("MILK-1L", 10, types.MustMoney("0.99"), date(purchased), expiry, "")
}

func TestIsExpired_ComparesCalendarDays(t *testing.T) {
	ny := zone(t, "America/New_York")
	b := dated("2025-03-01", "2025-03-10")

	// Evening of the expiry day in New York is already the 11th in UTC.
	assert.False(t, b.IsExpired(time.Date(2025, 3, 10, 21, 0, 0, 0, ny)))
	assert.Equal(t, 0, b.DaysUntilExpiry(time.Date(2025, 3, 10, 12, 0, 0, 0, ny)))
	assert.True(t, b.IsExpired(time.Date(2025, 3, 11, 0, 5, 0, 0, ny)))
	assert.Equal(t, 9, b.DaysUntilExpiry(time.Date(2025, 3, 1, 12, 0, 0, 0, ny)))

	tokyo := zone(t, "Asia/Tokyo")
	// Early morning of the 10th in Tokyo is still the 9th in UTC.
	assert.Equal(t, 0, b.DaysUntilExpiry(time.Date(2025, 3, 10, 8, 0, 0, 0, tokyo)))
	assert.True(t, b.IsExpired(time.Date(2025, 3, 11, 8, 0, 0, 0, tokyo)))
}

func TestDaysUntilExpiry_NoExpiry(t *testing.T) {
	assert.Equal(t, -1, dated("2025-03-01", "").DaysUntilExpiry(date("2025-03-05")))
	assert.False(t, dated("2025-03-01", "").IsExpired(date("2030-01-01")))
}

func TestValidate_PurchasedTodayInAnyZone(t *testing.T) {
	b := dated("2025-03-10", "2025-03-20")

	assert.NoError(t, b.Validate(time.Date(2025, 3, 10, 8, 0, 0, 0, zone(t, "Asia/Tokyo"))))
	assert.NoError(t, b.Validate(time.Date(2025, 3, 10, 22, 0, 0, 0, zone(t, "America/New_York"))))

	err := b.Validate(time.Date(2025, 3, 9, 23, 0, 0, 0, zone(t, "Asia/Tokyo")))
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
}

func TestValidate_ExpiryBeforePurchase(t *testing.T) {
	err := dated("2025-03-10", "2025-03-09").Validate(date("2025-03-12"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiry date cannot precede purchase date")

	assert.NoError(t, dated("2025-03-10", "2025-03-10").Validate(date("2025-03-12")))
}

func TestNewBatch_StoresCalendarDays(t *testing.T) {
	ny := zone(t, "America/New_York")
	expiry := time.Date(2025, 3, 20, 23, 0, 0, 0, ny)
	b := NewBatch("MILK-1L", 5, types.MustMoney("1.00"), time.Date(2025, 3, 10, 22, 0, 0, 0, ny), &expiry, "")

	assert.Equal(t, date("2025-03-10"), b.PurchaseDate)
	assert.Equal(t, date("2025-03-20"), *b.ExpiryDate)
}

func TestExpiryOrdering(t *testing.T) {
	early := dated("2025-03-01", "2025-03-05")
	late := dated("2025-03-01", "2025-03-09")
	never := dated("2025-03-01", "")

	assert.True(t, early.ExpiresBefore(late))
	assert.False(t, late.ExpiresBefore(early))
	assert.True(t, late.ExpiresBefore(never))
	assert.False(t, never.ExpiresBefore(early))
	assert.True(t, never.SameExpiry(dated("2025-02-01", "")))
	assert.True(t, early.SameExpiry(dated("2025-02-01", "2025-03-05")))
}

func TestLabel_DistinctForBatchesCreatedTogether(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		label := dated("2025-03-01", "").Label()
		assert.False(t, seen[label], "duplicate label %s", label)
		seen[label] = true
	}
}
