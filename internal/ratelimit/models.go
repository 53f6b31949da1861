// Package ratelimit defines core request and decision models.
package ratelimit

import "time"

// IdentityKind classifies how a caller was identified.
type IdentityKind int

const (
	KindAnonymous IdentityKind = iota
	KindSession
	KindPhone
)

// String returns the identity kind label.
func (k IdentityKind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindPhone:
		return "phone"
	default:
		return "anonymous"
	}
}

// Identity is the stable, non-reversible identifier for one request.
// Key is a hashed namespace, never raw PII. Derived fresh each call.
type Identity struct {
	Kind        IdentityKind
	Key         string
	Fingerprint string
}

// EvaluateRequest captures the inbound request descriptor supplied by the
// transport layer. Weight is the usage cost of the request; every current
// caller sends one unit.
type EvaluateRequest struct {
	ClientIP       string
	Phone          string
	SessionToken   string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	AcceptEncoding string
	Referer        string
	Weight         int64
}

// WindowUsage reports the post-decision state of one counting window.
type WindowUsage struct {
	Window     WindowKind
	Count      int64
	Limit      int64
	Remaining  int64
	ResetAfter time.Duration
}

// Decision is the evaluated outcome for one request. It is purely derived
// and never persisted.
type Decision struct {
	Allowed    bool
	Reason     string
	Tier       Tier
	Usage      map[WindowKind]WindowUsage
	Patterns   []string
	RetryAfter time.Duration
	SessionID  string
	Degraded   bool
}

// SessionRecord tracks an ephemeral caller session. Owned by the
// SessionManager; lifetime bounded by a store-side TTL.
type SessionRecord struct {
	ID             string
	CreatedAt      time.Time
	IP             string
	Fingerprint    string
	TotalRequests  int64
	SuspicionScore int64
	LastRequestAt  time.Time
}
