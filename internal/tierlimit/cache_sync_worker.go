// Package tierlimit provides cache synchronization workers.
package tierlimit

import (
	"context"
	"errors"
	"time"
)

// CacheSyncWorker periodically refreshes the override cache from the
// database, so out-of-band writes eventually reach the hot path.
type CacheSyncWorker struct {
	db       OverrideDB
	cache    *OverrideCache
	interval time.Duration
}

// NewCacheSyncWorker constructs a CacheSyncWorker.
func NewCacheSyncWorker(db OverrideDB, cache *OverrideCache, interval time.Duration) *CacheSyncWorker {
	return &CacheSyncWorker{db: db, cache: cache, interval: interval}
}

// Start begins the synchronization loop.
func (w *CacheSyncWorker) Start(ctx context.Context) error {
	if w == nil || w.db == nil || w.cache == nil {
		return errors.New("cache sync worker is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := w.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			overrides, err := w.db.LoadAll(ctx)
			if err != nil {
				continue
			}
			w.cache.ReplaceAll(overrides)
		}
	}
}
