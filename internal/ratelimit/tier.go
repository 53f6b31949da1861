// Package ratelimit provides tier resolution and limit tables.
package ratelimit

import (
	"fmt"
	"math"
)

// Tier is a caller's trust classification. Ordering is strict:
// Anonymous < SessionBacked < Established. Suspicious is a penalty tier
// applied regardless of history.
type Tier int

const (
	TierAnonymous Tier = iota
	TierSessionBacked
	TierEstablished
	TierSuspicious
)

// String returns the tier label exposed to callers.
func (t Tier) String() string {
	switch t {
	case TierSessionBacked:
		return "session"
	case TierEstablished:
		return "established"
	case TierSuspicious:
		return "suspicious"
	default:
		return "anonymous"
	}
}

// TierPolicy maps identity history and suspicion onto concrete numeric
// limits. Tiers are computed fresh on every request, never cached.
type TierPolicy struct {
	baseLimits         map[WindowKind]int64
	multipliers        map[Tier]float64
	suspicionThreshold int64
	graduationRequests int64
	patternPenalty     float64
}

// NewTierPolicy validates the limit tables and builds a policy.
func NewTierPolicy(cfg *Config) (*TierPolicy, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", ErrInvalidConfig)
	}
	base := map[WindowKind]int64{
		WindowBurst:  cfg.BurstLimit,
		WindowMinute: cfg.MinuteLimit,
		WindowHour:   cfg.HourLimit,
		WindowDay:    cfg.DayLimit,
	}
	for _, window := range windowOrder {
		if base[window] <= 0 {
			return nil, fmt.Errorf("%s window limit must be positive: %w", window, ErrInvalidConfig)
		}
	}
	mults := map[Tier]float64{
		TierAnonymous:     1,
		TierSessionBacked: cfg.SessionMultiplier,
		TierEstablished:   cfg.EstablishedMultiplier,
		TierSuspicious:    cfg.SuspiciousMultiplier,
	}
	if mults[TierSessionBacked] < mults[TierAnonymous] {
		return nil, fmt.Errorf("session multiplier below anonymous: %w", ErrInvalidConfig)
	}
	if mults[TierEstablished] < mults[TierSessionBacked] {
		return nil, fmt.Errorf("established multiplier below session: %w", ErrInvalidConfig)
	}
	if mults[TierSuspicious] <= 0 || mults[TierSuspicious] > mults[TierAnonymous] {
		return nil, fmt.Errorf("suspicious multiplier must be in (0, anonymous]: %w", ErrInvalidConfig)
	}
	if cfg.SuspicionThreshold <= 0 {
		return nil, fmt.Errorf("suspicion threshold must be positive: %w", ErrInvalidConfig)
	}
	if cfg.GraduationRequests <= 0 {
		return nil, fmt.Errorf("graduation threshold must be positive: %w", ErrInvalidConfig)
	}
	if cfg.PatternPenalty < 0 || cfg.PatternPenalty >= 1 {
		return nil, fmt.Errorf("pattern penalty must be in [0, 1): %w", ErrInvalidConfig)
	}
	return &TierPolicy{
		baseLimits:         base,
		multipliers:        mults,
		suspicionThreshold: cfg.SuspicionThreshold,
		graduationRequests: cfg.GraduationRequests,
		patternPenalty:     cfg.PatternPenalty,
	}, nil
}

// ResolveTier computes the effective tier for one request. The suspicion
// score includes the current request's contribution, so a caller crossing
// the threshold is demoted on this request, not the next.
func (p *TierPolicy) ResolveTier(identity Identity, sess *SessionRecord, suspicion int64) Tier {
	if p == nil {
		return TierAnonymous
	}
	if suspicion >= p.suspicionThreshold {
		return TierSuspicious
	}
	if identity.Kind == KindPhone {
		return TierEstablished
	}
	if sess == nil {
		return TierAnonymous
	}
	if sess.TotalRequests >= p.graduationRequests {
		return TierEstablished
	}
	return TierSessionBacked
}

// EffectiveLimit returns the limit for one window under a tier, shrunk
// multiplicatively per detected pattern, clamped to a minimum of one.
func (p *TierPolicy) EffectiveLimit(tier Tier, window WindowKind, patterns int) int64 {
	if p == nil {
		return 1
	}
	base := p.baseLimits[window]
	mult, ok := p.multipliers[tier]
	if !ok {
		mult = 1
	}
	limit := float64(base) * mult
	if patterns > 0 {
		limit *= math.Pow(1-p.patternPenalty, float64(patterns))
	}
	result := int64(math.Floor(limit))
	if result < 1 {
		result = 1
	}
	return result
}

// EffectiveLimits returns the limit for every window under a tier.
func (p *TierPolicy) EffectiveLimits(tier Tier, patterns int) map[WindowKind]int64 {
	limits := make(map[WindowKind]int64, len(windowOrder))
	for _, window := range windowOrder {
		limits[window] = p.EffectiveLimit(tier, window, patterns)
	}
	return limits
}

// SuspicionThreshold returns the forced-suspicious cutoff.
func (p *TierPolicy) SuspicionThreshold() int64 {
	if p == nil {
		return 0
	}
	return p.suspicionThreshold
}
