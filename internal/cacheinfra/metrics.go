package cacheinfra

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records result cache activity as prometheus series.
type Metrics struct {
	lookups       *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	failures      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors
// already registered by another instance are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "result_cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by namespace and outcome.",
		}, []string{"namespace", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "result_cache",
			Name:      "invalidations_total",
			Help:      "Namespace and key invalidations.",
		}, []string{"namespace", "scope"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "result_cache",
			Name:      "backend_failures_total",
			Help:      "Cache backend or codec failures recovered by falling back to the source.",
		}, []string{"namespace", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overlay",
			Subsystem: "result_cache",
			Name:      "backend_seconds",
			Help:      "Latency of cache backend calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.lookups, err = register(reg, m.lookups); err != nil {
		return nil, err
	}
	if m.invalidations, err = register(reg, m.invalidations); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveLookup counts a lookup outcome (hit, miss, bypassed).
func (m *Metrics) ObserveLookup(namespace, outcome string) {
	m.lookups.WithLabelValues(namespace, outcome).Inc()
}

// ObserveInvalidation counts an invalidation; scope is "key" or "namespace".
func (m *Metrics) ObserveInvalidation(namespace, scope string) {
	m.invalidations.WithLabelValues(namespace, scope).Inc()
}

// ObserveFailure counts a recovered backend failure.
func (m *Metrics) ObserveFailure(namespace, op string) {
	m.failures.WithLabelValues(namespace, op).Inc()
}

// ObserveLatency records how long a backend call took.
func (m *Metrics) ObserveLatency(op string, d time.Duration) {
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

