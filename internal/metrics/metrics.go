// Package metrics exposes the orchestrator's Prometheus collectors.
// Grounded on infrastructure/metrics/metrics.go's New/NewWithRegistry
// shape (a struct of pre-registered collectors plus small Record*
// helpers) and cmd/gateway/main.go's promhttp.Handler() wiring, narrowed
// to the counters spec.md's observability surface actually names:
// breaker trips, retry exhaustion, and cache hits/misses.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the orchestrator records against.
type Metrics struct {
	BreakerTrips   *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	RetryExhausted *prometheus.CounterVec
	RetryAttempts  *prometheus.CounterVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
}

// New creates a Metrics instance registered against reg. Passing a
// fresh *prometheus.Registry (rather than the global DefaultRegisterer)
// keeps repeated test construction free of "duplicate collector"
// panics; cmd/server wires prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_breaker_trips_total",
			Help: "Total number of circuit breaker transitions into the open state",
		}, []string{"breaker"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half_open, 2=open)",
		}, []string{"breaker"}),
		RetryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_retry_exhausted_total",
			Help: "Total number of operations that ran out of retry attempts",
		}, []string{"profile"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_retry_attempts_total",
			Help: "Total number of retry attempts made, including the first",
		}, []string{"profile"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_cache_hits_total",
			Help: "Total number of cache reads served from Redis",
		}, []string{"namespace"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_cache_misses_total",
			Help: "Total number of cache reads that found no value",
		}, []string{"namespace"}),
	}

	reg.MustRegister(
		m.BreakerTrips,
		m.BreakerState,
		m.RetryExhausted,
		m.RetryAttempts,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

// RecordBreakerTrip records a breaker transitioning into the open state.
func (m *Metrics) RecordBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.BreakerTrips.WithLabelValues(name).Inc()
}

// SetBreakerState records a breaker's current state as a gauge.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRetryAttempt records one retry attempt for the named profile.
func (m *Metrics) RecordRetryAttempt(profile string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(profile).Inc()
}

// RecordRetryExhausted records an operation that used up every retry.
func (m *Metrics) RecordRetryExhausted(profile string) {
	if m == nil {
		return
	}
	m.RetryExhausted.WithLabelValues(profile).Inc()
}

// RecordCacheHit records a cache read that found a value.
func (m *Metrics) RecordCacheHit(namespace string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss records a cache read that found nothing.
func (m *Metrics) RecordCacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(namespace).Inc()
}
