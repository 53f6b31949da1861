// Package ratelimit provides session issuance and tracking.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionManager issues and tracks ephemeral sessions that let an
// anonymous caller graduate to a higher tier through continued good
// behavior. Sessions are minted only for allowed requests; expiry is
// enforced by the store's TTL, no sweeper runs.
type SessionManager struct {
	store  SessionStore
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

// NewSessionManager constructs a manager. A nil clock defaults to time.Now.
func NewSessionManager(store SessionStore, ttl time.Duration, logger Logger) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Lookup loads the session for a presented token. Returns nil without
// error when the token has no live session.
func (m *SessionManager) Lookup(ctx context.Context, token string) (*SessionRecord, error) {
	if m == nil || m.store == nil {
		return nil, ErrStoreUnavailable
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return m.store.GetSession(ctx, token)
}

// Touch refreshes a session on a request that carries it, accumulating
// suspicion. Suspicion never decreases within a session's lifetime.
func (m *SessionManager) Touch(ctx context.Context, id string, addSuspicion int64) (*SessionRecord, error) {
	if m == nil || m.store == nil {
		return nil, ErrStoreUnavailable
	}
	return m.store.TouchSession(ctx, id, addSuspicion, m.now(), m.ttl)
}

// Mint creates a fresh session for a caller that holds none. Called only
// after an allowed request, so denied probes cannot bulk-mint sessions.
func (m *SessionManager) Mint(ctx context.Context, ip, fingerprint string, initialSuspicion int64) (*SessionRecord, error) {
	if m == nil || m.store == nil {
		return nil, ErrStoreUnavailable
	}
	if initialSuspicion < 0 {
		initialSuspicion = 0
	}
	now := m.now()
	rec := &SessionRecord{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		IP:             ip,
		Fingerprint:    fingerprint,
		TotalRequests:  1,
		SuspicionScore: initialSuspicion,
		LastRequestAt:  now,
	}
	if err := m.store.PutSession(ctx, rec, m.ttl); err != nil {
		return nil, err
	}
	return rec, nil
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	if m == nil {
		return 0
	}
	return m.ttl
}
