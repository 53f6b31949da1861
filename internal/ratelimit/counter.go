// Package ratelimit provides the multi-window sliding counter.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// WindowCheck is the post-increment state of one window for a decision.
// Known is false when the store could not answer that window; unknown
// windows are assumed under limit.
type WindowCheck struct {
	Window WindowKind
	Count  int64
	Limit  int64
	Known  bool
}

// SlidingWindowCounter runs the burst/minute/hour/day counting protocol
// for one identity key in a single store round trip. The event is recorded
// in every window regardless of which window rejects, so future counts
// stay correct.
type SlidingWindowCounter struct {
	store   WindowStore
	breaker *CircuitBreaker
	metrics Metrics
	logger  Logger
}

// NewSlidingWindowCounter constructs a counter.
func NewSlidingWindowCounter(store WindowStore, breaker *CircuitBreaker, metrics Metrics, logger Logger) *SlidingWindowCounter {
	return &SlidingWindowCounter{store: store, breaker: breaker, metrics: metrics, logger: logger}
}

// Check records one event and returns window states smallest to largest.
// A global store failure returns ErrStoreUnavailable; a single window's
// failure is reported as Known=false in its check.
func (c *SlidingWindowCounter) Check(ctx context.Context, key string, limits map[WindowKind]int64, now time.Time) ([]WindowCheck, error) {
	if c == nil || c.store == nil {
		return nil, ErrStoreUnavailable
	}
	if key == "" {
		return nil, ErrInvalidInput
	}
	if c.breaker != nil && !c.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.IncStoreError("breaker_open")
		}
		return nil, ErrStoreUnavailable
	}

	results, err := c.store.RecordAndCount(ctx, key, Windows(), now)
	if err != nil {
		if c.breaker != nil {
			c.breaker.OnFailure()
		}
		if c.metrics != nil {
			c.metrics.IncStoreError("record_and_count")
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if c.breaker != nil {
		c.breaker.OnSuccess()
	}

	checks := make([]WindowCheck, 0, len(results))
	for _, result := range results {
		check := WindowCheck{Window: result.Window, Limit: limits[result.Window]}
		if result.Err != nil {
			if c.logger != nil {
				c.logger.Warn("window unanswerable, assuming under limit", map[string]any{
					"window": result.Window.String(),
					"error":  result.Err.Error(),
				})
			}
			if c.metrics != nil {
				c.metrics.IncStoreError("window_" + result.Window.String())
			}
			checks = append(checks, check)
			continue
		}
		check.Count = result.Count
		check.Known = true
		checks = append(checks, check)
	}
	return checks, nil
}

// FirstViolation returns the smallest window whose post-increment count
// exceeds its limit, or false when every known window is within limits.
func FirstViolation(checks []WindowCheck) (WindowCheck, bool) {
	for _, check := range checks {
		if check.Known && check.Count > check.Limit {
			return check, true
		}
	}
	return WindowCheck{}, false
}
