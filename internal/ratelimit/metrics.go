// Package ratelimit provides in-memory metrics.
package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics receives decision and store health signals.
type Metrics interface {
	IncDecision(result string, tier string)
	IncStoreError(op string)
	IncFailOpen(scope string)
	IncSessionMinted()
	ObserveEvaluateLatency(d time.Duration)
}

// InMemoryMetrics stores counters and latency summaries.
type InMemoryMetrics struct {
	counters sync.Map
	latency  latencySummary
}

type latencySummary struct {
	count      atomic.Int64
	totalNanos atomic.Int64
	maxNanos   atomic.Int64
}

// NewInMemoryMetrics constructs an in-memory metrics recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncDecision increments a decision counter.
func (m *InMemoryMetrics) IncDecision(result string, tier string) {
	if m == nil {
		return
	}
	m.incCounter(fmt.Sprintf("decision|%s|%s", result, tier))
}

// IncStoreError increments store error counters.
func (m *InMemoryMetrics) IncStoreError(op string) {
	if m == nil {
		return
	}
	m.incCounter("store_error|" + op)
}

// IncFailOpen increments fail-open counters.
func (m *InMemoryMetrics) IncFailOpen(scope string) {
	if m == nil {
		return
	}
	m.incCounter("fail_open|" + scope)
}

// IncSessionMinted increments the minted-session counter.
func (m *InMemoryMetrics) IncSessionMinted() {
	if m == nil {
		return
	}
	m.incCounter("session_minted")
}

// ObserveEvaluateLatency tracks Evaluate latency.
func (m *InMemoryMetrics) ObserveEvaluateLatency(d time.Duration) {
	if m == nil {
		return
	}
	nanos := d.Nanoseconds()
	m.latency.count.Add(1)
	m.latency.totalNanos.Add(nanos)
	for {
		current := m.latency.maxNanos.Load()
		if nanos <= current {
			break
		}
		if m.latency.maxNanos.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// Snapshot exports metrics values.
func (m *InMemoryMetrics) Snapshot() map[string]any {
	result := map[string]any{}
	if m == nil {
		return result
	}
	counters := map[string]int64{}
	m.counters.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok || counter == nil {
			return true
		}
		counters[k] = counter.Load()
		return true
	})
	result["counters"] = counters
	result["evaluate_latency"] = map[string]int64{
		"count":      m.latency.count.Load(),
		"totalNanos": m.latency.totalNanos.Load(),
		"maxNanos":   m.latency.maxNanos.Load(),
	}
	return result
}

// Counter returns one counter's value, for tests.
func (m *InMemoryMetrics) Counter(key string) int64 {
	if m == nil {
		return 0
	}
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			return counter.Load()
		}
	}
	return 0
}

func (m *InMemoryMetrics) incCounter(key string) {
	if key == "" {
		return
	}
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			counter.Add(1)
			return
		}
	}
	counter := &atomic.Int64{}
	counter.Add(1)
	if actual, loaded := m.counters.LoadOrStore(key, counter); loaded {
		if stored, ok := actual.(*atomic.Int64); ok {
			stored.Add(1)
		}
	}
}
