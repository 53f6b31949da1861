package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func testPolicy(t *testing.T) *TierPolicy {
	t.Helper()
	policy, err := NewTierPolicy(DefaultConfig())
	if err != nil {
		t.Fatalf("expected policy to build: %v", err)
	}
	return policy
}

func TestResolveTier(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	threshold := policy.SuspicionThreshold()

	cases := []struct {
		name      string
		identity  Identity
		sess      *SessionRecord
		suspicion int64
		want      Tier
	}{
		{"anonymous without session", Identity{Kind: KindAnonymous}, nil, 0, TierAnonymous},
		{"fresh session", Identity{Kind: KindSession}, &SessionRecord{TotalRequests: 1}, 0, TierSessionBacked},
		{"graduated session", Identity{Kind: KindSession}, &SessionRecord{TotalRequests: 5}, 0, TierEstablished},
		{"phone verified", Identity{Kind: KindPhone}, nil, 0, TierEstablished},
		{"suspicion overrides phone", Identity{Kind: KindPhone}, nil, threshold, TierSuspicious},
		{"suspicion overrides graduation", Identity{Kind: KindSession}, &SessionRecord{TotalRequests: 100}, threshold + 1, TierSuspicious},
		{"just under threshold", Identity{Kind: KindAnonymous}, nil, threshold - 1, TierAnonymous},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := policy.ResolveTier(tc.identity, tc.sess, tc.suspicion); got != tc.want {
				t.Fatalf("ResolveTier() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEffectiveLimit_TierMonotonicity(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	for _, window := range Windows() {
		anon := policy.EffectiveLimit(TierAnonymous, window, 0)
		sess := policy.EffectiveLimit(TierSessionBacked, window, 0)
		est := policy.EffectiveLimit(TierEstablished, window, 0)
		susp := policy.EffectiveLimit(TierSuspicious, window, 0)
		if !(anon <= sess && sess <= est) {
			t.Fatalf("%s: limits not monotone: anon=%d sess=%d est=%d", window, anon, sess, est)
		}
		if susp > anon {
			t.Fatalf("%s: suspicious limit %d above anonymous %d", window, susp, anon)
		}
	}
}

func TestEffectiveLimit_PatternPenalty(t *testing.T) {
	t.Parallel()

	policy := testPolicy(t)
	base := policy.EffectiveLimit(TierAnonymous, WindowMinute, 0)
	one := policy.EffectiveLimit(TierAnonymous, WindowMinute, 1)
	two := policy.EffectiveLimit(TierAnonymous, WindowMinute, 2)
	if !(two <= one && one < base) {
		t.Fatalf("penalty not multiplicative: base=%d one=%d two=%d", base, one, two)
	}
	// Heavy penalties floor at one so nothing is ever fully locked out.
	if got := policy.EffectiveLimit(TierAnonymous, WindowBurst, 50); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestNewTierPolicy_RejectsBadTables(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero limit", func(c *Config) { c.MinuteLimit = 0 }},
		{"session below anonymous", func(c *Config) { c.SessionMultiplier = 0.5 }},
		{"established below session", func(c *Config) { c.EstablishedMultiplier = 1 }},
		{"suspicious above anonymous", func(c *Config) { c.SuspiciousMultiplier = 2 }},
		{"zero threshold", func(c *Config) { c.SuspicionThreshold = 0 }},
		{"penalty at one", func(c *Config) { c.PatternPenalty = 1 }},
		{"zero graduation", func(c *Config) { c.GraduationRequests = 0 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.SessionTTL = 24 * time.Hour
			tc.mutate(cfg)
			if _, err := NewTierPolicy(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
