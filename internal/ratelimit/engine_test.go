package ratelimit

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type engineFixture struct {
	engine  *Engine
	store   *InMemoryStore
	clock   *fakeClock
	metrics *InMemoryMetrics
}

func newEngineFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ServiceHost = "example.com"
	if mutate != nil {
		mutate(cfg)
	}

	clock := newFakeClock()
	store := NewInMemoryStore(clock.Now)
	policy, err := NewTierPolicy(cfg)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	metrics := NewInMemoryMetrics()
	logger := NewStdLogger(io.Discard)
	counter := NewSlidingWindowCounter(store, nil, metrics, logger)
	sessions := NewSessionManager(store, cfg.SessionTTL, logger)
	engine, err := NewEngine(NewIdentityResolver(), NewAbuseDetector(cfg.ServiceHost, cfg.PatternWeight), policy, counter, sessions, logger, metrics)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.now = clock.Now
	return &engineFixture{engine: engine, store: store, clock: clock, metrics: metrics}
}

func (f *engineFixture) evaluate(t *testing.T, req *EvaluateRequest) *Decision {
	t.Helper()
	decision, err := f.engine.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return decision
}

func TestEngine_AllowsUntilMinuteLimit(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, func(c *Config) {
		c.BurstLimit = 100
		c.MinuteLimit = 3
	})

	for i := 0; i < 3; i++ {
		decision := fx.evaluate(t, cleanRequest())
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed: %+v", i+1, decision)
		}
		usage, ok := decision.Usage[WindowMinute]
		if !ok {
			t.Fatalf("request %d missing minute usage", i+1)
		}
		if want := int64(3 - (i + 1)); usage.Remaining != want {
			t.Fatalf("request %d remaining = %d, want %d", i+1, usage.Remaining, want)
		}
	}

	decision := fx.evaluate(t, cleanRequest())
	if decision.Allowed {
		t.Fatalf("fourth request should be denied")
	}
	if !strings.Contains(decision.Reason, "minute") {
		t.Fatalf("reason should name the minute window: %q", decision.Reason)
	}
	if decision.RetryAfter != time.Minute {
		t.Fatalf("RetryAfter = %v, want 1m", decision.RetryAfter)
	}
	if decision.SessionID != "" {
		t.Fatalf("denied requests must not mint sessions")
	}
}

func TestEngine_WindowRecoversAfterSliding(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, func(c *Config) {
		c.BurstLimit = 2
		c.MinuteLimit = 100
	})

	fx.evaluate(t, cleanRequest())
	fx.evaluate(t, cleanRequest())
	if decision := fx.evaluate(t, cleanRequest()); decision.Allowed {
		t.Fatalf("third burst request should be denied")
	}

	fx.clock.Advance(11 * time.Second)
	if decision := fx.evaluate(t, cleanRequest()); !decision.Allowed {
		t.Fatalf("burst window should have slid past the old events: %+v", decision)
	}
}

func TestEngine_FailsOpenOnStoreOutage(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	fx.store.SetHealthy(false)

	decision := fx.evaluate(t, cleanRequest())
	if !decision.Allowed {
		t.Fatalf("store outage must fail open")
	}
	if !decision.Degraded {
		t.Fatalf("fail-open decisions must be marked degraded")
	}
	if len(decision.Usage) != 0 {
		t.Fatalf("no usage should be reported when the store is down: %+v", decision.Usage)
	}
	if got := fx.metrics.Counter("fail_open|global"); got != 1 {
		t.Fatalf("fail_open counter = %d, want 1", got)
	}
}

func TestEngine_PartialWindowFailureAssumesUnderLimit(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, func(c *Config) {
		c.BurstLimit = 1
	})
	fx.store.FailWindow(WindowBurst, true)

	// Without the burst answer the request sails through on the other
	// windows alone.
	for i := 0; i < 3; i++ {
		decision := fx.evaluate(t, cleanRequest())
		if !decision.Allowed {
			t.Fatalf("request %d should pass with burst unknown: %+v", i+1, decision)
		}
		if decision.Degraded {
			t.Fatalf("partial failure is not a degraded decision")
		}
		if _, ok := decision.Usage[WindowBurst]; ok {
			t.Fatalf("unknown windows must not appear in usage")
		}
	}
}

func TestEngine_MintsSessionOnAllowedAnonymousRequest(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)

	decision := fx.evaluate(t, cleanRequest())
	if !decision.Allowed || decision.SessionID == "" {
		t.Fatalf("expected a minted session: %+v", decision)
	}
	if got := fx.metrics.Counter("session_minted"); got != 1 {
		t.Fatalf("session_minted = %d, want 1", got)
	}

	// Presenting the minted token moves the caller to the session tier.
	req := cleanRequest()
	req.SessionToken = decision.SessionID
	second := fx.evaluate(t, req)
	if second.Tier != TierSessionBacked {
		t.Fatalf("tier = %s, want session", second.Tier)
	}
	if second.SessionID != decision.SessionID {
		t.Fatalf("session should be reused, got %q", second.SessionID)
	}
}

func TestEngine_SessionGraduatesToEstablished(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, func(c *Config) {
		c.BurstLimit = 100
	})

	first := fx.evaluate(t, cleanRequest())
	req := cleanRequest()
	req.SessionToken = first.SessionID

	var last *Decision
	for i := 0; i < 5; i++ {
		last = fx.evaluate(t, req)
		if !last.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+2)
		}
	}
	if last.Tier != TierEstablished {
		t.Fatalf("tier = %s, want established after sustained history", last.Tier)
	}
}

func TestEngine_PhoneIdentityIsEstablished(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	req := cleanRequest()
	req.Phone = "+14155550123"

	decision := fx.evaluate(t, req)
	if decision.Tier != TierEstablished {
		t.Fatalf("tier = %s, want established", decision.Tier)
	}
	if decision.SessionID != "" {
		t.Fatalf("phone-backed callers do not get sessions")
	}
}

func TestEngine_MalformedPhoneDowngradesToAnonymous(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	req := cleanRequest()
	req.Phone = "not-a-number"

	decision := fx.evaluate(t, req)
	if !decision.Allowed {
		t.Fatalf("downgrade must not deny: %+v", decision)
	}
	if decision.Tier != TierAnonymous {
		t.Fatalf("tier = %s, want anonymous", decision.Tier)
	}
}

func TestEngine_DeadSessionTokenDowngrades(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	req := cleanRequest()
	req.SessionToken = "0f0e0d0c-0b0a-0908-0706-050403020100"

	decision := fx.evaluate(t, req)
	if decision.Tier != TierAnonymous {
		t.Fatalf("tier = %s, want anonymous for a token with no live session", decision.Tier)
	}
	// A fresh session is minted since the presented one is dead.
	if decision.SessionID == "" || decision.SessionID == req.SessionToken {
		t.Fatalf("expected a replacement session, got %q", decision.SessionID)
	}
}

func TestEngine_HeavyPatternsForceSuspicious(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	req := &EvaluateRequest{
		ClientIP:  "203.0.113.10",
		UserAgent: "scraper-bot",
		Weight:    1,
	}

	decision := fx.evaluate(t, req)
	if decision.Tier != TierSuspicious {
		t.Fatalf("tier = %s, want suspicious at score >= threshold", decision.Tier)
	}
	if len(decision.Patterns) != 3 {
		t.Fatalf("patterns = %v, want automation + two missing headers", decision.Patterns)
	}

	// Suspicious runs at the anonymous base, then each pattern halves
	// the limit: 20 * 0.5^3 floors to 2.
	usage := decision.Usage[WindowMinute]
	if usage.Limit != 2 {
		t.Fatalf("suspicious minute limit = %d, want 2", usage.Limit)
	}
}

func TestEngine_SessionSuspicionIsIrreversible(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)

	first := fx.evaluate(t, cleanRequest())
	flagged := cleanRequest()
	flagged.SessionToken = first.SessionID
	flagged.Accept = ""

	var demotedAt int
	for i := 0; i < 4; i++ {
		decision := fx.evaluate(t, flagged)
		if decision.Tier == TierSuspicious {
			demotedAt = i + 1
			break
		}
	}
	if demotedAt == 0 {
		t.Fatalf("accumulated pattern hits never demoted the session")
	}

	// Going back to clean requests does not restore the tier, and the
	// clean request runs at anonymous-level limits.
	clean := cleanRequest()
	clean.SessionToken = first.SessionID
	decision := fx.evaluate(t, clean)
	if decision.Tier != TierSuspicious {
		t.Fatalf("tier = %s, demotion must stick for the session lifetime", decision.Tier)
	}
	if usage, ok := decision.Usage[WindowMinute]; !ok || usage.Limit != DefaultConfig().MinuteLimit {
		t.Fatalf("suspicious minute limit = %+v, want anonymous base %d", usage, DefaultConfig().MinuteLimit)
	}
}

func TestEngine_RejectsUnusableDescriptor(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	if _, err := fx.engine.Evaluate(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil request, got %v", err)
	}
	if _, err := fx.engine.Evaluate(context.Background(), &EvaluateRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty client IP, got %v", err)
	}
}

func TestEngine_DecisionMetrics(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, func(c *Config) {
		c.BurstLimit = 1
		c.MinuteLimit = 100
	})

	fx.evaluate(t, cleanRequest())
	fx.evaluate(t, cleanRequest())

	if got := fx.metrics.Counter("decision|allowed|anonymous"); got != 1 {
		t.Fatalf("allowed counter = %d, want 1", got)
	}
	if got := fx.metrics.Counter("decision|denied|anonymous"); got != 1 {
		t.Fatalf("denied counter = %d, want 1", got)
	}
}
