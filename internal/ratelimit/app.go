// Package ratelimit wires application dependencies.
package ratelimit

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Application holds core components for the service.
type Application struct {
	Config         *Config
	Engine         *Engine
	Counter        *SlidingWindowCounter
	Sessions       *SessionManager
	Policy         *TierPolicy
	Detector       *AbuseDetector
	Resolver       *IdentityResolver
	Breaker        *CircuitBreaker
	DegradeControl *DegradeController
	HealthLoop     *HealthLoop

	store         Store
	logger        Logger
	metrics       Metrics
	httpTransport *HTTPTransport
	ready         atomic.Bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewInMemoryMetrics()
	}

	store := cfg.Store
	if store == nil {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			redisStore, err := NewRedisStore(client, cfg.KeyPrefix, cfg.StoreTimeout)
			if err != nil {
				return nil, err
			}
			store = redisStore
		} else {
			logger.Warn("no redis address configured, using in-memory store", nil)
			store = NewInMemoryStore(nil)
		}
	}

	policy, err := NewTierPolicy(cfg)
	if err != nil {
		return nil, err
	}
	resolver := NewIdentityResolver()
	detector := NewAbuseDetector(cfg.ServiceHost, cfg.PatternWeight)
	breaker := NewCircuitBreaker(cfg.Breaker)
	counter := NewSlidingWindowCounter(store, breaker, metrics, logger)
	sessions := NewSessionManager(store, cfg.SessionTTL, logger)

	engine, err := NewEngine(resolver, detector, policy, counter, sessions, logger, metrics)
	if err != nil {
		return nil, err
	}

	degrade := NewDegradeController(store, cfg.DegradeThresh)
	degrade.SetLogger(logger)
	health := NewHealthLoop(degrade, cfg.HealthInterval)

	app := &Application{
		Config:         cfg,
		Engine:         engine,
		Counter:        counter,
		Sessions:       sessions,
		Policy:         policy,
		Detector:       detector,
		Resolver:       resolver,
		Breaker:        breaker,
		DegradeControl: degrade,
		HealthLoop:     health,
		store:          store,
		logger:         logger,
		metrics:        metrics,
	}

	if cfg.EnableHTTP {
		transport, err := NewHTTPTransport(cfg.HTTPListenAddr, engine, app.Ready, app.Mode)
		if err != nil {
			return nil, err
		}
		if inMem, ok := metrics.(*InMemoryMetrics); ok {
			transport.SetMetrics(inMem)
		}
		app.httpTransport = transport
	}

	return app, nil
}

// Start begins background work for the application.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if app.HealthLoop != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.HealthLoop.Start(ctx)
		}()
	}
	if app.httpTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.httpTransport.Start(); err != nil {
				app.logger.Error("http transport stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	app.ready.Store(true)

	return nil
}

// Shutdown stops background work for the application.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.ready.Store(false)
	if app.httpTransport != nil {
		_ = app.httpTransport.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}

// Mode returns the current operating mode.
func (app *Application) Mode() OperatingMode {
	if app == nil || app.DegradeControl == nil {
		return ModeNormal
	}
	return app.DegradeControl.Mode()
}

// Metrics exposes the metrics recorder for tests and transports.
func (app *Application) Metrics() Metrics {
	if app == nil {
		return nil
	}
	return app.metrics
}

// HTTPHandler returns the transport handler, or nil when HTTP is disabled.
func (app *Application) HTTPHandler() *HTTPTransport {
	if app == nil {
		return nil
	}
	return app.httpTransport
}
