package report_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/domain/reports"
)

func TestLowStockQuery(t *testing.T) {
	repo := NewReportRepo(nil)

	sql, args, err := repo.lowStockQuery(reports.LowStockFilter{
		Threshold:    5,
		ProductCodes: []string{"MILK", "EGGS"},
		Limit:        100,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT product_code, SUM(remaining_quantity) AS total_remaining, "+
		"COUNT(*) FILTER (WHERE remaining_quantity > 0) AS batch_count FROM batches "+
		"WHERE product_code IN ($1,$2) GROUP BY product_code HAVING SUM(remaining_quantity) <= $3 "+
		"ORDER BY total_remaining, product_code LIMIT 100", sql)
	assert.Len(t, args, 3)
}

func TestExpiringQuery(t *testing.T) {
	repo := NewReportRepo(nil)
	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.expiringQuery(reports.ExpiringFilter{Days: 30, AsOfDate: asOf, Limit: 10}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "expiry_date <= $2 AND expiry_date >= $3")
	assert.Equal(t, asOf.AddDate(0, 0, 30), args[1])
	assert.Equal(t, asOf, args[2])

	sql, _, err = repo.expiringQuery(reports.ExpiringFilter{Days: 30, AsOfDate: asOf, IncludeExpired: true}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "expiry_date >=")
}
