// Package observability provides a Prometheus metrics implementation.
package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics implements Metrics on a Prometheus registry.
type PromMetrics struct {
	registry          *prometheus.Registry
	checks            *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	casConflicts      *prometheus.CounterVec
	overrideDiscarded *prometheus.CounterVec
}

// NewPromMetrics constructs a PromMetrics with its own registry.
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tierlimit_checks_total",
			Help: "Quota decisions by result and tier.",
		}, []string{"result", "tier"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tierlimit_op_duration_seconds",
			Help:    "Operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tierlimit_store_errors_total",
			Help: "State store failures by operation.",
		}, []string{"op"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tierlimit_cas_conflicts_total",
			Help: "Compare-and-set conflicts by operation.",
		}, []string{"op"}),
		overrideDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tierlimit_overrides_discarded_total",
			Help: "Invalid custom limits discarded in favor of tier defaults.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.checks, m.latency, m.storeErrors, m.casConflicts, m.overrideDiscarded)
	return m
}

// Registry returns the underlying registry for HTTP exposition.
func (m *PromMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncCheck increments a check counter.
func (m *PromMetrics) IncCheck(result string, tier string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(result, tier).Inc()
}

// ObserveLatency tracks latency measurements.
func (m *PromMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// IncStoreError increments store error counters.
func (m *PromMetrics) IncStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncCASConflict increments compare-and-set conflict counters.
func (m *PromMetrics) IncCASConflict(op string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(op).Inc()
}

// IncOverrideDiscarded increments discarded-override counters.
func (m *PromMetrics) IncOverrideDiscarded(reason string) {
	if m == nil {
		return
	}
	m.overrideDiscarded.WithLabelValues(reason).Inc()
}

// Snapshot exports current metric values keyed by family and label set.
func (m *PromMetrics) Snapshot() map[string]any {
	result := map[string]any{}
	if m == nil {
		return result
	}
	families, err := m.registry.Gather()
	if err != nil {
		return result
	}
	for _, family := range families {
		series := map[string]any{}
		for _, metric := range family.GetMetric() {
			var labels []string
			for _, pair := range metric.GetLabel() {
				labels = append(labels, pair.GetName()+"="+pair.GetValue())
			}
			key := strings.Join(labels, ",")
			if key == "" {
				key = "value"
			}
			switch {
			case metric.GetCounter() != nil:
				series[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				series[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				series[key] = map[string]any{
					"count": metric.GetHistogram().GetSampleCount(),
					"sum":   metric.GetHistogram().GetSampleSum(),
				}
			}
		}
		result[family.GetName()] = series
	}
	return result
}
