// Package ratelimit provides request draining for transport shutdown.
package ratelimit

import (
	"context"
	"sync"
)

// RequestDrain gates request admission during shutdown. Begin/End pair
// around every served request; Close stops admission and Wait blocks
// until the last admitted request has finished. A drain never reopens.
type RequestDrain struct {
	mu       sync.Mutex
	active   int64
	draining bool
	closed   bool
	done     chan struct{}
}

// NewRequestDrain constructs a drain accepting requests.
func NewRequestDrain() *RequestDrain {
	return &RequestDrain{done: make(chan struct{})}
}

// Begin admits one request. It reports false once draining has started;
// the caller should reject the request instead of serving it.
func (d *RequestDrain) Begin() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return false
	}
	d.active++
	return true
}

// End marks one admitted request as finished.
func (d *RequestDrain) End() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active > 0 {
		d.active--
	}
	d.finishLocked()
}

// Close stops admitting requests. Safe to call more than once.
func (d *RequestDrain) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draining = true
	d.finishLocked()
}

// Draining reports whether admission has stopped.
func (d *RequestDrain) Draining() bool {
	if d == nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draining
}

// Wait blocks until the drain is closed and empty, or the context ends.
func (d *RequestDrain) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishLocked releases waiters once draining has started and the last
// request is out. Callers hold d.mu.
func (d *RequestDrain) finishLocked() {
	if d.draining && d.active == 0 && !d.closed {
		d.closed = true
		close(d.done)
	}
}
