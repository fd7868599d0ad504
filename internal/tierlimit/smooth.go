// Package tierlimit provides a smooth token-bucket limiter variant.
package tierlimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter is the smooth alternative to the fixed-window
// limiter: tokens refill continuously at baseLimit per window and the
// bucket holds baseLimit+burstLimit. It keeps its state in process, so
// it suits single-instance deployments and non-contractual endpoints
// where exact per-window counts are not required.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
	idleTTL time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	policy   TierPolicy
	lastSeen time.Time
}

// NewTokenBucketLimiter constructs a TokenBucketLimiter. Entries idle
// longer than idleTTL are dropped by Cleanup.
func NewTokenBucketLimiter(idleTTL time.Duration) *TokenBucketLimiter {
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}
	return &TokenBucketLimiter{
		entries: make(map[string]*bucketEntry),
		idleTTL: idleTTL,
	}
}

// Allow evaluates one request for key under policy at instant now.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key []byte, policy TierPolicy, now time.Time) (*Decision, error) {
	if l == nil {
		return nil, ErrStorageUnavailable
	}
	if len(key) == 0 {
		return nil, ErrInvalidInput
	}
	if policy.BaseLimit <= 0 || policy.Window <= 0 {
		return nil, ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[string(key)]
	if entry == nil || entry.policy != policy {
		refill := rate.Limit(float64(policy.BaseLimit) / policy.Window.Seconds())
		entry = &bucketEntry{
			lim:    rate.NewLimiter(refill, int(policy.BaseLimit+policy.BurstLimit)),
			policy: policy,
		}
		l.entries[string(key)] = entry
	}
	entry.lastSeen = now

	decision := &Decision{
		Limit:   policy.BaseLimit,
		ResetAt: now.Add(policy.Window),
	}
	if entry.lim.AllowN(now, 1) {
		decision.Allowed = true
		decision.Remaining = int64(entry.lim.TokensAt(now))
		if decision.Remaining < 0 {
			decision.Remaining = 0
		}
		return decision, nil
	}

	reservation := entry.lim.ReserveN(now, 1)
	if reservation.OK() {
		decision.RetryAfter = ceilSeconds(reservation.DelayFrom(now))
		reservation.CancelAt(now)
	} else {
		decision.RetryAfter = ceilSeconds(policy.Window)
	}
	return decision, nil
}

// Cleanup drops entries idle longer than the configured TTL.
func (l *TokenBucketLimiter) Cleanup(now time.Time) {
	if l == nil {
		return
	}
	cutoff := now.Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// StartJanitor cleans idle entries until the context is canceled.
func (l *TokenBucketLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if l == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				l.Cleanup(tick)
			}
		}
	}()
}

// Len reports the number of tracked keys.
func (l *TokenBucketLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
