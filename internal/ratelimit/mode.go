// Package ratelimit provides operating mode controls.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// OperatingMode represents the current operating state.
type OperatingMode int32

const (
	ModeNormal OperatingMode = iota
	ModeDegraded
)

// DegradeThresholds defines how long the store may stay unhealthy before
// the engine is reported as degraded.
type DegradeThresholds struct {
	StoreUnhealthyFor time.Duration
}

// DegradeController tracks store health for mode reporting. Mode changes
// are logged; degraded operation is never silent.
type DegradeController struct {
	mode             atomic.Int32
	store            WindowStore
	thresholds       DegradeThresholds
	lastStoreHealthy atomic.Int64
	logger           Logger
	lastMode         atomic.Int32
}

// NewDegradeController constructs a DegradeController.
func NewDegradeController(store WindowStore, th DegradeThresholds) *DegradeController {
	if th.StoreUnhealthyFor <= 0 {
		th.StoreUnhealthyFor = 500 * time.Millisecond
	}
	controller := &DegradeController{store: store, thresholds: th}
	controller.mode.Store(int32(ModeNormal))
	controller.lastMode.Store(int32(ModeNormal))
	controller.lastStoreHealthy.Store(time.Now().UnixNano())
	return controller
}

// SetLogger configures a logger for mode changes.
func (dc *DegradeController) SetLogger(l Logger) {
	if dc == nil {
		return
	}
	dc.logger = l
}

// Mode returns the current operating mode.
func (dc *DegradeController) Mode() OperatingMode {
	if dc == nil {
		return ModeNormal
	}
	return OperatingMode(dc.mode.Load())
}

// Update refreshes the current operating mode from store health.
func (dc *DegradeController) Update(ctx context.Context) {
	if dc == nil {
		return
	}
	now := time.Now()
	healthy := true
	if dc.store != nil {
		healthy = dc.store.Healthy(ctx)
	}
	if healthy {
		dc.lastStoreHealthy.Store(now.UnixNano())
	}

	mode := ModeNormal
	if now.Sub(time.Unix(0, dc.lastStoreHealthy.Load())) >= dc.thresholds.StoreUnhealthyFor {
		mode = ModeDegraded
	}
	dc.mode.Store(int32(mode))
	prev := OperatingMode(dc.lastMode.Load())
	if prev != mode {
		dc.lastMode.Store(int32(mode))
		if dc.logger != nil {
			dc.logger.Warn("operating mode changed", map[string]any{
				"old": modeLabel(prev),
				"new": modeLabel(mode),
			})
		}
	}
}

func modeLabel(mode OperatingMode) string {
	if mode == ModeDegraded {
		return "degraded"
	}
	return "normal"
}
