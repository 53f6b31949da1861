// Package ratelimit provides CLI helpers.
package ratelimit

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"
)

// PrintConfig writes the effective config to the writer as JSON.
func PrintConfig(w io.Writer, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if w == nil {
		return errors.New("writer is required")
	}
	snapshot := newConfigSnapshot(cfg)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

type durationMillis time.Duration

func (d durationMillis) MarshalJSON() ([]byte, error) {
	ms := time.Duration(d).Milliseconds()
	return []byte(strconv.FormatInt(ms, 10)), nil
}

type configSnapshot struct {
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

	SessionTTL   durationMillis
	StoreTimeout durationMillis
	KeyPrefix    string
	ServiceHost  string

	RedisAddr string
	RedisDB   int

	EnableHTTP     bool
	HTTPListenAddr string
	SessionCookie  string

	HealthInterval durationMillis
	Breaker        circuitOptionsSnapshot
	DegradeThresh  degradeThresholdSnapshot
}

type circuitOptionsSnapshot struct {
	FailureThreshold int64
	OpenDuration     durationMillis
	HalfOpenMaxCalls int64
}

type degradeThresholdSnapshot struct {
	StoreUnhealthyFor durationMillis
}

// newConfigSnapshot deliberately omits RedisPassword so the printed
// config is safe to paste into tickets.
func newConfigSnapshot(cfg *Config) configSnapshot {
	snapshot := configSnapshot{}
	if cfg == nil {
		return snapshot
	}
	snapshot.BurstLimit = cfg.BurstLimit
	snapshot.MinuteLimit = cfg.MinuteLimit
	snapshot.HourLimit = cfg.HourLimit
	snapshot.DayLimit = cfg.DayLimit
	snapshot.SessionMultiplier = cfg.SessionMultiplier
	snapshot.EstablishedMultiplier = cfg.EstablishedMultiplier
	snapshot.SuspiciousMultiplier = cfg.SuspiciousMultiplier
	snapshot.SuspicionThreshold = cfg.SuspicionThreshold
	snapshot.PatternWeight = cfg.PatternWeight
	snapshot.PatternPenalty = cfg.PatternPenalty
	snapshot.GraduationRequests = cfg.GraduationRequests
	snapshot.SessionTTL = durationMillis(cfg.SessionTTL)
	snapshot.StoreTimeout = durationMillis(cfg.StoreTimeout)
	snapshot.KeyPrefix = cfg.KeyPrefix
	snapshot.ServiceHost = cfg.ServiceHost
	snapshot.RedisAddr = cfg.RedisAddr
	snapshot.RedisDB = cfg.RedisDB
	snapshot.EnableHTTP = cfg.EnableHTTP
	snapshot.HTTPListenAddr = cfg.HTTPListenAddr
	snapshot.SessionCookie = cfg.SessionCookie
	snapshot.HealthInterval = durationMillis(cfg.HealthInterval)
	snapshot.Breaker = circuitOptionsSnapshot{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenDuration:     durationMillis(cfg.Breaker.OpenDuration),
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}
	snapshot.DegradeThresh = degradeThresholdSnapshot{
		StoreUnhealthyFor: durationMillis(cfg.DegradeThresh.StoreUnhealthyFor),
	}
	return snapshot
}
