// Package ratelimit provides an HTTP transport.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPTransport serves the evaluate API and operational endpoints. The
// evaluate endpoint lets sidecar deployments check limits for an upstream
// request descriptor; in-process deployments use Middleware instead.
type HTTPTransport struct {
	addr    string
	srv     *http.Server
	engine  *Engine
	ready   func() bool
	mode    func() OperatingMode
	metrics *InMemoryMetrics
	promMux http.Handler
	router  *gin.Engine
	drain   *RequestDrain
	mu      sync.Mutex
}

// NewHTTPTransport constructs a transport bound to an address.
func NewHTTPTransport(addr string, engine *Engine, ready func() bool, mode func() OperatingMode) (*HTTPTransport, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if addr == "" {
		addr = ":8080"
	}
	if ready == nil {
		ready = func() bool { return false }
	}
	if mode == nil {
		mode = func() OperatingMode { return ModeNormal }
	}
	return &HTTPTransport{addr: addr, engine: engine, ready: ready, mode: mode, drain: NewRequestDrain()}, nil
}

// SetMetrics attaches an in-memory metrics snapshot endpoint.
func (t *HTTPTransport) SetMetrics(m *InMemoryMetrics) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// SetMetricsHandler attaches an external metrics handler, e.g. promhttp.
func (t *HTTPTransport) SetMetricsHandler(h http.Handler) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.promMux = h
}

// Start begins serving HTTP requests.
func (t *HTTPTransport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	handler := t.handler()
	t.mu.Lock()
	if t.srv == nil {
		t.srv = &http.Server{
			Addr:         t.addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}
	srv := t.srv
	t.mu.Unlock()

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	t.drain.Close()
	if err := t.drain.Wait(ctx); err != nil {
		return srv.Close()
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler()
}

func (t *HTTPTransport) handler() http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.router != nil {
		return t.router
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		if !t.drain.Begin() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
			return
		}
		defer t.drain.End()
		c.Next()
	})

	router.POST("/v1/ratelimit/evaluate", t.handleEvaluate)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if !t.ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/mode", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"mode": modeLabel(t.mode())})
	})
	router.GET("/metrics", func(c *gin.Context) {
		if t.promMux != nil {
			t.promMux.ServeHTTP(c.Writer, c.Request)
			return
		}
		if t.metrics != nil {
			c.JSON(http.StatusOK, t.metrics.Snapshot())
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics not configured"})
	})

	t.router = router
	return router
}

type httpEvaluateRequest struct {
	ClientIP       string `json:"client_ip"`
	Phone          string `json:"phone,omitempty"`
	SessionToken   string `json:"session_token,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	Accept         string `json:"accept,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	AcceptEncoding string `json:"accept_encoding,omitempty"`
	Referer        string `json:"referer,omitempty"`
	Weight         int64  `json:"weight,omitempty"`
}

type httpWindowUsage struct {
	Count        int64 `json:"count"`
	Limit        int64 `json:"limit"`
	Remaining    int64 `json:"remaining"`
	ResetSeconds int64 `json:"reset_seconds"`
}

type httpDecision struct {
	Allowed           bool                       `json:"allowed"`
	Reason            string                     `json:"reason,omitempty"`
	Tier              string                     `json:"tier"`
	Usage             map[string]httpWindowUsage `json:"usage"`
	Patterns          []string                   `json:"patterns,omitempty"`
	RetryAfterSeconds int64                      `json:"retry_after_seconds,omitempty"`
	SessionID         string                     `json:"session_id,omitempty"`
	Degraded          bool                       `json:"degraded,omitempty"`
}

func (t *HTTPTransport) handleEvaluate(c *gin.Context) {
	var httpReq httpEvaluateRequest
	if err := c.ShouldBindJSON(&httpReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	decision, err := t.engine.Evaluate(c.Request.Context(), &EvaluateRequest{
		ClientIP:       httpReq.ClientIP,
		Phone:          httpReq.Phone,
		SessionToken:   httpReq.SessionToken,
		UserAgent:      httpReq.UserAgent,
		Accept:         httpReq.Accept,
		AcceptLanguage: httpReq.AcceptLanguage,
		AcceptEncoding: httpReq.AcceptEncoding,
		Referer:        httpReq.Referer,
		Weight:         httpReq.Weight,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request descriptor"})
		return
	}
	c.JSON(http.StatusOK, fromDecision(decision))
}

func fromDecision(decision *Decision) httpDecision {
	usage := make(map[string]httpWindowUsage, len(decision.Usage))
	for window, state := range decision.Usage {
		usage[window.String()] = httpWindowUsage{
			Count:        state.Count,
			Limit:        state.Limit,
			Remaining:    state.Remaining,
			ResetSeconds: int64(state.ResetAfter.Seconds()),
		}
	}
	return httpDecision{
		Allowed:           decision.Allowed,
		Reason:            decision.Reason,
		Tier:              decision.Tier.String(),
		Usage:             usage,
		Patterns:          decision.Patterns,
		RetryAfterSeconds: int64(decision.RetryAfter.Seconds()),
		SessionID:         decision.SessionID,
		Degraded:          decision.Degraded,
	}
}
