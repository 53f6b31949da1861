// Package ratelimit provides an in-memory counting store.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// InMemoryStore implements Store in process memory. It backs tests and
// single-instance deployments; counts are not shared across processes.
type InMemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	events      map[string][]time.Time
	sessions    map[string]*memSession
	healthy     atomic.Bool
	failWindows map[WindowKind]bool
}

type memSession struct {
	rec     SessionRecord
	expires time.Time
}

// NewInMemoryStore constructs an in-memory store. A nil clock defaults to
// time.Now.
func NewInMemoryStore(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	store := &InMemoryStore{
		now:         now,
		events:      make(map[string][]time.Time),
		sessions:    make(map[string]*memSession),
		failWindows: make(map[WindowKind]bool),
	}
	store.healthy.Store(true)
	return store
}

// SetHealthy toggles simulated store availability.
func (s *InMemoryStore) SetHealthy(v bool) {
	if s == nil {
		return
	}
	s.healthy.Store(v)
}

// FailWindow makes a single window unanswerable, for partial-failure tests.
func (s *InMemoryStore) FailWindow(window WindowKind, fail bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWindows[window] = fail
}

// Healthy reports simulated store health.
func (s *InMemoryStore) Healthy(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.healthy.Load()
}

// RecordAndCount records one event and counts events per window under a
// single lock, mirroring the atomicity of the Redis transaction.
func (s *InMemoryStore) RecordAndCount(ctx context.Context, key string, windows []WindowKind, now time.Time) ([]WindowResult, error) {
	if s == nil {
		return nil, ErrStoreUnavailable
	}
	if !s.healthy.Load() {
		return nil, ErrStoreUnavailable
	}
	if key == "" {
		return nil, ErrInvalidInput
	}
	if len(windows) == 0 {
		windows = Windows()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := now.Add(-largestWindow())
	kept := s.events[key][:0]
	for _, at := range s.events[key] {
		if at.After(horizon) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	s.events[key] = kept

	results := make([]WindowResult, len(windows))
	for i, window := range windows {
		if s.failWindows[window] {
			results[i] = WindowResult{Window: window, Err: ErrStoreUnavailable}
			continue
		}
		cutoff := now.Add(-window.Duration())
		var count int64
		for _, at := range kept {
			if at.After(cutoff) {
				count++
			}
		}
		results[i] = WindowResult{Window: window, Count: count}
	}
	return results, nil
}

// GetSession returns a stored session, or nil when absent or expired.
func (s *InMemoryStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	if s == nil || !s.healthy.Load() {
		return nil, ErrStoreUnavailable
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !entry.expires.After(s.now()) {
		delete(s.sessions, id)
		return nil, nil
	}
	rec := entry.rec
	return &rec, nil
}

// PutSession stores a session with the provided TTL.
func (s *InMemoryStore) PutSession(ctx context.Context, rec *SessionRecord, ttl time.Duration) error {
	if s == nil || !s.healthy.Load() {
		return ErrStoreUnavailable
	}
	if rec == nil || rec.ID == "" {
		return ErrInvalidIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = &memSession{rec: *rec, expires: s.now().Add(ttl)}
	return nil
}

// TouchSession bumps counters and refreshes expiry, returning the updated
// record. Touching a missing session creates its counters from zero, the
// same as the Redis hash increments.
func (s *InMemoryStore) TouchSession(ctx context.Context, id string, addSuspicion int64, now time.Time, ttl time.Duration) (*SessionRecord, error) {
	if s == nil || !s.healthy.Load() {
		return nil, ErrStoreUnavailable
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}
	if addSuspicion < 0 {
		addSuspicion = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		entry = &memSession{rec: SessionRecord{ID: id}}
		s.sessions[id] = entry
	}
	entry.rec.TotalRequests++
	entry.rec.SuspicionScore += addSuspicion
	entry.rec.LastRequestAt = now
	entry.expires = s.now().Add(ttl)
	rec := entry.rec
	return &rec, nil
}
