// Package ratelimit defines the counting store contract.
package ratelimit

import (
	"context"
	"time"
)

// WindowResult is the outcome of one window's record-and-count. Err is set
// when the window could not be answered; the caller treats that window as
// unknown and under limit.
type WindowResult struct {
	Window WindowKind
	Count  int64
	Err    error
}

// WindowStore records one usage event and counts events inside each
// requested window, atomically per key relative to concurrent callers.
// Implementations must prune events older than the largest window and
// attach a key expiry of the largest window plus a margin, and must bound
// every operation with a timeout.
type WindowStore interface {
	RecordAndCount(ctx context.Context, key string, windows []WindowKind, now time.Time) ([]WindowResult, error)
	Healthy(ctx context.Context) bool
}

// SessionStore persists session metadata in a store hash with a TTL.
// GetSession returns nil without error when the session does not exist or
// has expired.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	PutSession(ctx context.Context, rec *SessionRecord, ttl time.Duration) error
	TouchSession(ctx context.Context, id string, addSuspicion int64, now time.Time, ttl time.Duration) (*SessionRecord, error)
}

// Store combines the counting and session capabilities the engine needs.
type Store interface {
	WindowStore
	SessionStore
}
