package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus metrics. A nil *Metrics disables
// collection: every record method is nil-safe so the manager never
// branches on whether metrics are configured.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal prometheus.Counter
}

// NewMetrics creates and registers the engine metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratchet_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"outcome", "source"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratchet_decision_duration_seconds",
				Help:    "Permission decision duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratchet_cache_hits_total",
				Help: "Total number of decision cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratchet_cache_misses_total",
				Help: "Total number of decision cache misses",
			},
		),
		CacheInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratchet_cache_invalidations_total",
				Help: "Total number of decision cache invalidations",
			},
		),
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
	)

	return m
}

func (m *Metrics) recordDecision(allowed bool, source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.DecisionsTotal.WithLabelValues(outcome, source).Inc()
	m.DecisionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) recordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) recordCacheInvalidation() {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.Inc()
}
