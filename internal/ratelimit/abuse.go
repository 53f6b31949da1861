// Package ratelimit provides abuse pattern detection.
package ratelimit

import (
	"net/url"
	"strings"
)

// Pattern labels for detected automation signals.
const (
	PatternAutomationUA   = "automation-user-agent"
	PatternMissingAccept  = "missing-accept"
	PatternMissingLang    = "missing-accept-language"
	PatternForeignReferer = "foreign-referer"
)

var automationMarkers = []string{"bot", "crawler", "spider", "scraper", "automated"}

// AbuseReport is the stateless per-request inspection result. Score is the
// request's contribution to a session's cumulative suspicion.
type AbuseReport struct {
	Patterns []string
	Score    int64
}

// AbuseDetector inspects request metadata for automation signals. Pattern
// detection is stateless per request; cumulative scoring lives in the
// session hash and is updated by the SessionManager.
type AbuseDetector struct {
	serviceHost   string
	patternWeight int64
}

// NewAbuseDetector constructs a detector. serviceHost is the host of the
// protected service, used to classify Referer headers.
func NewAbuseDetector(serviceHost string, patternWeight int64) *AbuseDetector {
	if patternWeight <= 0 {
		patternWeight = defaultPatternWeight
	}
	return &AbuseDetector{serviceHost: strings.ToLower(serviceHost), patternWeight: patternWeight}
}

// Inspect scores one request. The order of patterns is stable.
func (d *AbuseDetector) Inspect(req *EvaluateRequest) AbuseReport {
	if d == nil || req == nil {
		return AbuseReport{}
	}
	var patterns []string
	if ua := strings.ToLower(req.UserAgent); ua != "" {
		for _, marker := range automationMarkers {
			if strings.Contains(ua, marker) {
				patterns = append(patterns, PatternAutomationUA)
				break
			}
		}
	}
	if strings.TrimSpace(req.Accept) == "" {
		patterns = append(patterns, PatternMissingAccept)
	}
	if strings.TrimSpace(req.AcceptLanguage) == "" {
		patterns = append(patterns, PatternMissingLang)
	}
	if d.foreignReferer(req.Referer) {
		patterns = append(patterns, PatternForeignReferer)
	}
	return AbuseReport{Patterns: patterns, Score: int64(len(patterns)) * d.patternWeight}
}

func (d *AbuseDetector) foreignReferer(referer string) bool {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return false
	}
	parsed, err := url.Parse(referer)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	return !strings.EqualFold(parsed.Hostname(), d.serviceHost)
}
