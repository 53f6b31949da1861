// Package ratelimit provides the rate limit decision engine.
package ratelimit

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Engine orchestrates identity resolution, abuse scoring, tier policy,
// window counting, and session management into one Evaluate call. It is
// stateless between calls; the store is the sole serialization point, so
// Evaluate is safe to run concurrently without in-process locking.
type Engine struct {
	resolver *IdentityResolver
	detector *AbuseDetector
	policy   *TierPolicy
	counter  *SlidingWindowCounter
	sessions *SessionManager
	logger   Logger
	metrics  Metrics
	now      func() time.Time
}

// NewEngine wires the engine from its components.
func NewEngine(resolver *IdentityResolver, detector *AbuseDetector, policy *TierPolicy, counter *SlidingWindowCounter, sessions *SessionManager, logger Logger, metrics Metrics) (*Engine, error) {
	if resolver == nil || detector == nil || policy == nil || counter == nil || sessions == nil {
		return nil, fmt.Errorf("engine components are required: %w", ErrInvalidConfig)
	}
	if logger == nil {
		logger = NewStdLogger(os.Stderr)
	}
	if metrics == nil {
		metrics = NewInMemoryMetrics()
	}
	return &Engine{
		resolver: resolver,
		detector: detector,
		policy:   policy,
		counter:  counter,
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Evaluate makes the admit/reject decision for one request. Store outages
// never surface as errors; the caller always receives a Decision. The only
// error case is an unusable request descriptor.
func (e *Engine) Evaluate(ctx context.Context, req *EvaluateRequest) (*Decision, error) {
	if e == nil {
		return nil, ErrInvalidInput
	}
	if req == nil || req.ClientIP == "" {
		return nil, ErrInvalidInput
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := e.now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveEvaluateLatency(time.Since(start))
		}
	}()

	fingerprint := e.resolver.Fingerprint(req)
	report := e.detector.Inspect(req)
	identity, sess := e.resolveIdentity(ctx, req, fingerprint)

	suspicion := report.Score
	if sess != nil {
		suspicion += sess.SuspicionScore
	}
	tier := e.policy.ResolveTier(identity, sess, suspicion)
	limits := e.policy.EffectiveLimits(tier, len(report.Patterns))

	checks, err := e.counter.Check(ctx, identity.Key, limits, start)
	if err != nil {
		// Availability over strict enforcement: a false negative risks
		// temporary overuse, a false positive breaks the public feature.
		e.logger.Warn("counting store unreachable, failing open", map[string]any{
			"identity_kind": identity.Kind.String(),
			"tier":          tier.String(),
			"error":         err.Error(),
		})
		e.metrics.IncFailOpen("global")
		e.metrics.IncDecision("allowed", tier.String())
		return &Decision{
			Allowed:  true,
			Tier:     tier,
			Usage:    map[WindowKind]WindowUsage{},
			Patterns: report.Patterns,
			Degraded: true,
		}, nil
	}

	usage := make(map[WindowKind]WindowUsage, len(checks))
	for _, check := range checks {
		if !check.Known {
			continue
		}
		remaining := check.Limit - check.Count
		if remaining < 0 {
			remaining = 0
		}
		usage[check.Window] = WindowUsage{
			Window:     check.Window,
			Count:      check.Count,
			Limit:      check.Limit,
			Remaining:  remaining,
			ResetAfter: check.Window.Duration(),
		}
	}

	if violation, violated := FirstViolation(checks); violated {
		if sess != nil {
			e.touchSession(ctx, sess.ID, report.Score)
		}
		e.metrics.IncDecision("denied", tier.String())
		return &Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("%s window limit exceeded (%d/%d)", violation.Window, violation.Count, violation.Limit),
			Tier:       tier,
			Usage:      usage,
			Patterns:   report.Patterns,
			RetryAfter: violation.Window.Duration(),
		}, nil
	}

	decision := &Decision{
		Allowed:  true,
		Tier:     tier,
		Usage:    usage,
		Patterns: report.Patterns,
	}
	if sess != nil {
		e.touchSession(ctx, sess.ID, report.Score)
		decision.SessionID = sess.ID
	} else if identity.Kind != KindPhone {
		if minted := e.mintSession(ctx, req.ClientIP, fingerprint, report.Score); minted != nil {
			decision.SessionID = minted.ID
		}
	}
	e.metrics.IncDecision("allowed", tier.String())
	return decision, nil
}

// resolveIdentity applies the Phone > Session > Anonymous order. Malformed
// identities and dead-session tokens downgrade to the next weaker variant,
// never fail.
func (e *Engine) resolveIdentity(ctx context.Context, req *EvaluateRequest, fingerprint string) (Identity, *SessionRecord) {
	if req.Phone != "" {
		identity, err := e.resolver.Phone(req.Phone, fingerprint)
		if err == nil {
			return identity, nil
		}
		e.logger.Info("unparseable phone identifier, downgrading", map[string]any{"error": err.Error()})
	}
	if req.SessionToken != "" {
		identity, err := e.resolver.Session(req.SessionToken, fingerprint)
		if err == nil {
			sess, lookupErr := e.sessions.Lookup(ctx, req.SessionToken)
			if lookupErr == nil && sess != nil {
				return identity, sess
			}
			if lookupErr != nil {
				e.logger.Warn("session lookup failed, downgrading to anonymous", map[string]any{"error": lookupErr.Error()})
			}
		} else {
			e.logger.Info("malformed session token, downgrading", map[string]any{"error": err.Error()})
		}
	}
	return e.resolver.Anonymous(req.ClientIP, fingerprint), nil
}

func (e *Engine) touchSession(ctx context.Context, id string, addSuspicion int64) {
	if _, err := e.sessions.Touch(ctx, id, addSuspicion); err != nil {
		e.logger.Warn("session touch failed", map[string]any{"error": err.Error()})
	}
}

func (e *Engine) mintSession(ctx context.Context, ip, fingerprint string, initialSuspicion int64) *SessionRecord {
	minted, err := e.sessions.Mint(ctx, ip, fingerprint, initialSuspicion)
	if err != nil {
		e.logger.Warn("session mint failed", map[string]any{"error": err.Error()})
		return nil
	}
	e.metrics.IncSessionMinted()
	return minted
}
