package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)
	assert.NotNil(t, m.BreakerTrips)
	assert.NotNil(t, m.BreakerState)
	assert.NotNil(t, m.RetryExhausted)
	assert.NotNil(t, m.RetryAttempts)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
}

func TestRecordBreakerTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBreakerTrip("stock-data")
	m.RecordBreakerTrip("stock-data")
	m.SetBreakerState("stock-data", 2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerTrips.WithLabelValues("stock-data")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues("stock-data")))
}

func TestRecordRetryAttemptAndExhausted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRetryAttempt("mcp")
	m.RecordRetryAttempt("mcp")
	m.RecordRetryExhausted("mcp")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RetryAttempts.WithLabelValues("mcp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetryExhausted.WithLabelValues("mcp")))
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCacheHit("quote")
	m.RecordCacheHit("quote")
	m.RecordCacheMiss("quote")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHits.WithLabelValues("quote")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMisses.WithLabelValues("quote")))
}

func TestNilMetricsRecordCallsDoNotPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBreakerTrip("x")
		m.SetBreakerState("x", 1)
		m.RecordRetryAttempt("x")
		m.RecordRetryExhausted("x")
		m.RecordCacheHit("x")
		m.RecordCacheMiss("x")
	})
}
