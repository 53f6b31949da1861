// Package ratelimit provides the gin middleware adapter.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// MiddlewareOptions configure the gin middleware behavior.
type MiddlewareOptions struct {
	// SessionCookie is the cookie carrying the session token.
	SessionCookie string
	// SessionTTL bounds the emitted cookie lifetime.
	SessionTTL time.Duration
	// PhoneHeader optionally names a trusted header carrying a verified
	// phone identifier, set by an upstream authenticated channel.
	PhoneHeader string
	Logger      Logger
}

// Middleware enforces rate limits for incoming gin requests. Denied
// requests receive a 429 with a structured reason and Retry-After;
// allowed requests continue with rate-limit headers set and, when a
// session was minted or refreshed, the session cookie emitted.
func Middleware(engine *Engine, opts MiddlewareOptions) gin.HandlerFunc {
	if opts.SessionCookie == "" {
		opts.SessionCookie = "rl_session"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	return func(c *gin.Context) {
		req := descriptorFromContext(c, opts)
		decision, err := engine.Evaluate(c.Request.Context(), req)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Error("rate limit evaluation rejected request descriptor", map[string]any{"error": err.Error()})
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		setRateLimitHeaders(c, decision)

		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"reason":      decision.Reason,
				"tier":        decision.Tier.String(),
				"retry_after": retryAfter,
			})
			return
		}

		if decision.SessionID != "" {
			presented, _ := c.Cookie(opts.SessionCookie)
			if presented != decision.SessionID {
				c.SetCookie(opts.SessionCookie, decision.SessionID, int(opts.SessionTTL.Seconds()), "/", "", false, true)
			}
		}
		c.Next()
	}
}

func descriptorFromContext(c *gin.Context, opts MiddlewareOptions) *EvaluateRequest {
	req := &EvaluateRequest{
		ClientIP:       c.ClientIP(),
		UserAgent:      c.GetHeader("User-Agent"),
		Accept:         c.GetHeader("Accept"),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		AcceptEncoding: c.GetHeader("Accept-Encoding"),
		Referer:        c.GetHeader("Referer"),
		Weight:         1,
	}
	if opts.PhoneHeader != "" {
		req.Phone = c.GetHeader(opts.PhoneHeader)
	}
	if token, err := c.Cookie(opts.SessionCookie); err == nil {
		req.SessionToken = token
	}
	return req
}

// setRateLimitHeaders exposes the most binding window by convention:
// limit, remaining, reset seconds, and the tier label.
func setRateLimitHeaders(c *gin.Context, decision *Decision) {
	c.Header("X-RateLimit-Tier", decision.Tier.String())
	binding, ok := bindingWindow(decision.Usage)
	if !ok {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.FormatInt(binding.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(binding.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(binding.ResetAfter.Seconds()), 10))
}

// bindingWindow picks the window with the least remaining headroom,
// breaking ties toward the smallest window.
func bindingWindow(usage map[WindowKind]WindowUsage) (WindowUsage, bool) {
	var best WindowUsage
	found := false
	for _, window := range windowOrder {
		state, ok := usage[window]
		if !ok {
			continue
		}
		if !found || state.Remaining < best.Remaining {
			best = state
			found = true
		}
	}
	return best, found
}
