// Package ratelimit provides Prometheus metrics.
package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on a Prometheus registry.
type PrometheusMetrics struct {
	decisions   *prometheus.CounterVec
	storeErrs   *prometheus.CounterVec
	failOpens   *prometheus.CounterVec
	sessions    prometheus.Counter
	evaluations prometheus.Histogram
}

// NewPrometheusMetrics registers collectors on the registry and returns
// the recorder. Passing nil uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by result and tier.",
		}, []string{"result", "tier"}),
		storeErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Counting store errors by operation.",
		}, []string{"op"}),
		failOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_fail_open_total",
			Help: "Requests admitted fail-open by scope.",
		}, []string{"scope"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_sessions_minted_total",
			Help: "Sessions minted for allowed requests.",
		}),
		evaluations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratelimit_evaluate_duration_seconds",
			Help:    "Evaluate call latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
	reg.MustRegister(m.decisions, m.storeErrs, m.failOpens, m.sessions, m.evaluations)
	return m
}

// IncDecision increments a decision counter.
func (m *PrometheusMetrics) IncDecision(result string, tier string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result, tier).Inc()
}

// IncStoreError increments store error counters.
func (m *PrometheusMetrics) IncStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrs.WithLabelValues(op).Inc()
}

// IncFailOpen increments fail-open counters.
func (m *PrometheusMetrics) IncFailOpen(scope string) {
	if m == nil {
		return
	}
	m.failOpens.WithLabelValues(scope).Inc()
}

// IncSessionMinted increments the minted-session counter.
func (m *PrometheusMetrics) IncSessionMinted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// ObserveEvaluateLatency tracks Evaluate latency.
func (m *PrometheusMetrics) ObserveEvaluateLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.Observe(d.Seconds())
}
