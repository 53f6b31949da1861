package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInMemoryMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	m.IncDecision("allowed", "anonymous")
	m.IncDecision("allowed", "anonymous")
	m.IncDecision("denied", "suspicious")
	m.IncStoreError("record_and_count")
	m.IncFailOpen("global")
	m.IncSessionMinted()

	if got := m.Counter("decision|allowed|anonymous"); got != 2 {
		t.Fatalf("allowed counter = %d, want 2", got)
	}
	if got := m.Counter("decision|denied|suspicious"); got != 1 {
		t.Fatalf("denied counter = %d, want 1", got)
	}
	if got := m.Counter("missing"); got != 0 {
		t.Fatalf("missing counter = %d, want 0", got)
	}
}

func TestInMemoryMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	m.IncFailOpen("global")
	m.ObserveEvaluateLatency(2 * time.Millisecond)
	m.ObserveEvaluateLatency(5 * time.Millisecond)

	snapshot := m.Snapshot()
	counters, ok := snapshot["counters"].(map[string]int64)
	if !ok {
		t.Fatalf("snapshot missing counters: %+v", snapshot)
	}
	if counters["fail_open|global"] != 1 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
	latency, ok := snapshot["evaluate_latency"].(map[string]int64)
	if !ok {
		t.Fatalf("snapshot missing latency: %+v", snapshot)
	}
	if latency["count"] != 2 {
		t.Fatalf("latency count = %d, want 2", latency["count"])
	}
	if latency["maxNanos"] != (5 * time.Millisecond).Nanoseconds() {
		t.Fatalf("latency max = %d", latency["maxNanos"])
	}
}

func TestPrometheusMetrics_RecordsWithoutPanic(t *testing.T) {
	t.Parallel()

	m := NewPrometheusMetrics(prometheus.NewRegistry())
	m.IncDecision("allowed", "session")
	m.IncStoreError("record_and_count")
	m.IncFailOpen("global")
	m.IncSessionMinted()
	m.ObserveEvaluateLatency(time.Millisecond)
}
