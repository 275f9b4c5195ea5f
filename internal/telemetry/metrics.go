// Package telemetry provides Prometheus collectors for the interception cache.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheStores   prometheus.Counter
	StoreErrors   *prometheus.CounterVec
	Fallbacks     prometheus.Counter
	Passthroughs  *prometheus.CounterVec
	Messages      *prometheus.CounterVec
	Invalidations prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "cache_hits_total",
			Help:      "Total responses served from the store.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "cache_misses_total",
			Help:      "Total intercepted requests not found in the store.",
		}),

		CacheStores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "cache_stores_total",
			Help:      "Total cacheable responses written to the store.",
		}),

		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "store_errors_total",
			Help:      "Total store operations that failed.",
		}, []string{"op"}),

		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "fallbacks_total",
			Help:      "Total offline fallback responses synthesized.",
		}),

		Passthroughs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "passthroughs_total",
			Help:      "Total requests left to default network handling.",
		}, []string{"reason"}),

		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "messages_total",
			Help:      "Total control messages received, by tag.",
		}, []string{"type"}),

		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intercept_cache",
			Name:      "invalidated_entries_total",
			Help:      "Total entries removed by CLEAR_CACHE.",
		}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.CacheStores,
		m.StoreErrors,
		m.Fallbacks,
		m.Passthroughs,
		m.Messages,
		m.Invalidations,
	)

	return m
}

func (m *Metrics) Hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) Miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) Stored() {
	if m != nil {
		m.CacheStores.Inc()
	}
}

func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Fallback() {
	if m != nil {
		m.Fallbacks.Inc()
	}
}

func (m *Metrics) Passthrough(reason string) {
	if m != nil {
		m.Passthroughs.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Message(kind string) {
	if m != nil {
		m.Messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Invalidated(n int) {
	if m != nil {
		m.Invalidations.Add(float64(n))
	}
}
