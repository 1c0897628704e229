package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("sales:reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("sales:reconcile").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("sales:reconcile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("sales:reconcile", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("sales:reconcile")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestReconcileAndLowStockCollectors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddReconciled("confirmed")
	metrics.AddReconciled("confirmed")
	metrics.AddReconciled("")
	metrics.SetLowStock(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.reconciled.WithLabelValues("confirmed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.lowStock))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("x").End(boom), boom)
	metrics.AddReconciled("confirmed")
	metrics.SetLowStock(1)
}
