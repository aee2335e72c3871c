package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("inventory:low_stock_scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("inventory:low_stock_scan").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("inventory:low_stock_scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("inventory:low_stock_scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("inventory:low_stock_scan")))
}

func TestGauges(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.SetLowStock(3)
	metrics.SetValuation("fifo", 1500)

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.lowStockItems))
	require.Equal(t, 1500.0, testutil.ToFloat64(metrics.valuationTotal.WithLabelValues("fifo")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	metrics.SetLowStock(1)
	metrics.SetValuation("average", 1)
	err := errors.New("x")
	require.Equal(t, err, metrics.Track("job").End(err))
}
