package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/bootstrap"
	"stockflow/internal/domain/reports"
	"stockflow/pkg/logger"
)

func demoReports(t *testing.T, today time.Time) *reports.Service {
	t.Helper()
	backend := bootstrap.OpenMemory()
	require.NoError(t, bootstrap.LoadDemo(context.Background(), backend.Memory, today))
	return reports.NewService(backend.Reports).WithClock(func() time.Time { return today })
}

func TestSweep(t *testing.T) {
	today := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	w := New(demoReports(t, today), Config{LowStockThreshold: 10, ExpiringDays: 3}, logger.NewTest(t))

	sum, err := w.Sweep(context.Background())
	require.NoError(t, err)

	// One bread batch expired yesterday, the other expires tomorrow.
	assert.Equal(t, 1, sum.Expired)
	assert.Equal(t, 1, sum.Expiring)
	assert.EqualValues(t, 55, sum.AtRiskUnits)
	assert.Equal(t, []string{"COFFEE-250"}, sum.LowStockCodes)
}

type failingReporter struct{}

func (failingReporter) LowStock(context.Context, reports.LowStockFilter) (*reports.LowStockReport, error) {
	return nil, errors.New("boom")
}

func (failingReporter) ExpiringSoon(context.Context, reports.ExpiringFilter) (*reports.ExpiringReport, error) {
	return nil, errors.New("boom")
}

func TestSweep_Error(t *testing.T) {
	w := New(failingReporter{}, Config{}, logger.NewTest(t))
	_, err := w.Sweep(context.Background())
	assert.ErrorContains(t, err, "expiring report")
}

func TestRun_StopsOnCancel(t *testing.T) {
	today := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	w := New(demoReports(t, today), Config{Interval: 10 * time.Millisecond, ExpiringDays: 3}, logger.NewTest(t))

	var sweeps atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	w.AfterSweep = func(context.Context) {
		if sweeps.Add(1) == 3 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.GreaterOrEqual(t, sweeps.Load(), int32(3))
}
