// Package tierlimit provides the fixed-window-with-burst limiter.
package tierlimit

import (
	"context"
	"time"

	"tierlimit/internal/tierlimit/observability"
)

// WindowLimiter admits requests against a fixed window with a burst
// allowance, persisting counters through a StateStore compare-and-set
// cycle. Concurrent callers against the same key retry from a fresh
// read on CAS conflict, so admitted plus denied decisions always equal
// the number of calls made.
type WindowLimiter struct {
	store   StateStore
	metrics observability.Metrics
}

// NewWindowLimiter constructs a WindowLimiter over a state store.
func NewWindowLimiter(store StateStore, metrics observability.Metrics) *WindowLimiter {
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	return &WindowLimiter{store: store, metrics: metrics}
}

// Allow evaluates one request for key under policy at instant now.
// It returns a storage error unchanged; it never converts a storage
// failure into an allow decision.
func (l *WindowLimiter) Allow(ctx context.Context, key []byte, policy TierPolicy, now time.Time) (*Decision, error) {
	if l == nil || l.store == nil {
		return nil, ErrStorageUnavailable
	}
	if len(key) == 0 {
		return nil, ErrInvalidInput
	}
	if policy.BaseLimit <= 0 || policy.Window <= 0 {
		return nil, ErrInvalidInput
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(CodeStorageUnavailable, "storage unavailable", err)
		}

		stored, ok, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		var expected *WindowState
		state := stored
		if ok {
			snapshot := stored
			expected = &snapshot
		}
		if !ok || !now.Before(state.WindowEnd) {
			// Fixed-window rollover: anchor a fresh window at now,
			// regardless of how far past the old window the clock is.
			state = WindowState{WindowStart: now, WindowEnd: now.Add(policy.Window)}
		}

		switch {
		case state.Count < policy.BaseLimit:
			state.Count++
		case state.BurstUsed < policy.BurstLimit:
			state.BurstUsed++
		default:
			// Denied requests leave the stored state untouched.
			return l.decision(false, policy, state, now), nil
		}

		swapped, err := l.store.CompareAndSet(ctx, key, expected, state)
		if err != nil {
			return nil, err
		}
		if swapped {
			return l.decision(true, policy, state, now), nil
		}
		l.metrics.IncCASConflict("check")
	}
}

func (l *WindowLimiter) decision(allowed bool, policy TierPolicy, state WindowState, now time.Time) *Decision {
	pool := policy.BaseLimit + policy.BurstLimit
	remaining := pool - (state.Count + state.BurstUsed)
	if remaining < 0 {
		remaining = 0
	}
	decision := &Decision{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     policy.BaseLimit,
		ResetAt:   state.WindowEnd,
	}
	if !allowed {
		decision.RetryAfter = ceilSeconds(state.WindowEnd.Sub(now))
	}
	return decision
}

// ceilSeconds rounds a duration up to whole seconds, with a one second
// floor so a denied caller never receives a zero retry hint.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
