// Package tierlimit provides periodic store health checks.
package tierlimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"tierlimit/internal/tierlimit/observability"
)

// StoreHealthLoop pings the state store and tracks reachability for
// readiness reporting.
type StoreHealthLoop struct {
	store    StateStore
	interval time.Duration
	logger   observability.Logger
	healthy  atomic.Bool
}

// NewStoreHealthLoop constructs a StoreHealthLoop.
func NewStoreHealthLoop(store StateStore, interval time.Duration, logger observability.Logger) *StoreHealthLoop {
	loop := &StoreHealthLoop{store: store, interval: interval, logger: logger}
	loop.healthy.Store(true)
	return loop
}

// Healthy reports the last observed store health.
func (h *StoreHealthLoop) Healthy() bool {
	if h == nil {
		return false
	}
	return h.healthy.Load()
}

// Start begins the health check loop.
func (h *StoreHealthLoop) Start(ctx context.Context) error {
	if h == nil || h.store == nil {
		return errors.New("health loop is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := h.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			healthy := h.store.Healthy(ctx)
			previous := h.healthy.Swap(healthy)
			if previous != healthy && h.logger != nil {
				if healthy {
					h.logger.Info("state store recovered", nil)
				} else {
					h.logger.Error("state store unreachable", nil)
				}
			}
		}
	}
}
