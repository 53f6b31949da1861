package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestRequestDrain_WaitsForActiveRequests(t *testing.T) {
	t.Parallel()

	drain := NewRequestDrain()
	if !drain.Begin() {
		t.Fatalf("fresh drain should admit requests")
	}
	drain.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := drain.Wait(ctx); err == nil {
		t.Fatalf("wait should block while a request is still active")
	}

	drain.End()
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := drain.Wait(ctx); err != nil {
		t.Fatalf("wait should release once the last request ends: %v", err)
	}
}

func TestRequestDrain_CloseStopsAdmission(t *testing.T) {
	t.Parallel()

	drain := NewRequestDrain()
	drain.Close()
	if drain.Begin() {
		t.Fatalf("closed drain must not admit requests")
	}
	if !drain.Draining() {
		t.Fatalf("closed drain should report draining")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := drain.Wait(ctx); err != nil {
		t.Fatalf("empty closed drain releases immediately: %v", err)
	}
}

func TestRequestDrain_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	drain := NewRequestDrain()
	if !drain.Begin() {
		t.Fatalf("fresh drain should admit requests")
	}
	drain.Close()
	drain.Close()
	drain.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := drain.Wait(ctx); err != nil {
		t.Fatalf("double close must not wedge the drain: %v", err)
	}
}

func TestRequestDrain_NilSafe(t *testing.T) {
	t.Parallel()

	var drain *RequestDrain
	if drain.Begin() {
		t.Fatalf("nil drain must not admit")
	}
	if !drain.Draining() {
		t.Fatalf("nil drain reports draining")
	}
	drain.End()
	drain.Close()
	if err := drain.Wait(context.Background()); err != nil {
		t.Fatalf("nil drain wait is a no-op: %v", err)
	}
}
