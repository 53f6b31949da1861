// Package ratelimit provides periodic store health probing.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const defaultHealthInterval = 100 * time.Millisecond

// HealthLoop drives the degrade controller off the request path: the
// store is probed once immediately on start and then on every tick, so
// mode reporting never adds latency to Evaluate.
type HealthLoop struct {
	degrade  *DegradeController
	interval time.Duration
}

// NewHealthLoop constructs a health loop around a degrade controller.
func NewHealthLoop(degrade *DegradeController, interval time.Duration) *HealthLoop {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthLoop{degrade: degrade, interval: interval}
}

// Start probes until the context ends. It blocks; run it on its own
// goroutine.
func (h *HealthLoop) Start(ctx context.Context) error {
	if h == nil || h.degrade == nil {
		return errors.New("health loop is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.degrade.Update(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.degrade.Update(ctx)
		}
	}
}
