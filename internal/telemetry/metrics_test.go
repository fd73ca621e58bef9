package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersGaugeAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.StationsRegistered.Set(3)
	m.StationsStarted.Inc()
	m.ATGTransactionsStarted.Inc()
	m.ATGTransactionsStarted.Inc()
	m.ControlPlaneCommandsTotal.WithLabelValues("startTransaction", "ok").Inc()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.StationsRegistered))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StationsStarted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ATGTransactionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ControlPlaneCommandsTotal.WithLabelValues("startTransaction", "ok")))
}

func TestNewMetricsPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
