// Package ratelimit provides configuration for the application wiring.
package ratelimit

import (
	"fmt"
	"time"
)

const (
	defaultPatternWeight = 7
	defaultSessionTTL    = 24 * time.Hour
)

// Config captures dependency and runtime settings. Limits are the
// anonymous-tier baselines; higher tiers scale them by multiplier.
type Config struct {
	BurstLimit  int64
	MinuteLimit int64
	HourLimit   int64
	DayLimit    int64

	SessionMultiplier     float64
	EstablishedMultiplier float64
	SuspiciousMultiplier  float64

	SuspicionThreshold int64
	PatternWeight      int64
	PatternPenalty     float64
	GraduationRequests int64

	SessionTTL   time.Duration
	StoreTimeout time.Duration
	KeyPrefix    string
	ServiceHost  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EnableHTTP     bool
	HTTPListenAddr string
	SessionCookie  string

	HealthInterval time.Duration
	Breaker        CircuitOptions
	DegradeThresh  DegradeThresholds

	Store   Store
	Logger  Logger
	Metrics Metrics
}

// Validate reports configuration errors. Fatal at startup only; never a
// runtime condition.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required: %w", ErrInvalidConfig)
	}
	if c.BurstLimit <= 0 || c.MinuteLimit <= 0 || c.HourLimit <= 0 || c.DayLimit <= 0 {
		return fmt.Errorf("window limits must be positive: %w", ErrInvalidConfig)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive: %w", ErrInvalidConfig)
	}
	if c.StoreTimeout <= 0 || c.StoreTimeout > time.Second {
		return fmt.Errorf("store timeout must be within (0, 1s]: %w", ErrInvalidConfig)
	}
	if c.EnableHTTP && c.HTTPListenAddr == "" {
		return fmt.Errorf("http listen address is required: %w", ErrInvalidConfig)
	}
	return nil
}
