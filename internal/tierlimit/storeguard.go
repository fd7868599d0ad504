// Package tierlimit provides a breaker-guarded state store.
package tierlimit

import (
	"context"

	"tierlimit/internal/tierlimit/observability"
)

// GuardedStore wraps a StateStore with a circuit breaker. Failures,
// timeouts and an open breaker all surface as a storage-unavailable
// error, so callers fail closed instead of granting access.
type GuardedStore struct {
	inner   StateStore
	breaker *CircuitBreaker
	metrics observability.Metrics
}

// NewGuardedStore constructs a GuardedStore.
func NewGuardedStore(inner StateStore, breaker *CircuitBreaker, metrics observability.Metrics) *GuardedStore {
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	return &GuardedStore{inner: inner, breaker: breaker, metrics: metrics}
}

// Get loads state through the breaker.
func (s *GuardedStore) Get(ctx context.Context, key []byte) (WindowState, bool, error) {
	if s == nil || s.inner == nil {
		return WindowState{}, false, ErrStorageUnavailable
	}
	if !s.breaker.Allow() {
		s.metrics.IncStoreError("get")
		return WindowState{}, false, ErrStorageUnavailable
	}
	state, ok, err := s.inner.Get(ctx, key)
	if err != nil {
		s.breaker.OnFailure()
		s.metrics.IncStoreError("get")
		return WindowState{}, false, storageError(err)
	}
	s.breaker.OnSuccess()
	return state, ok, nil
}

// CompareAndSet writes state through the breaker.
func (s *GuardedStore) CompareAndSet(ctx context.Context, key []byte, expected *WindowState, next WindowState) (bool, error) {
	if s == nil || s.inner == nil {
		return false, ErrStorageUnavailable
	}
	if !s.breaker.Allow() {
		s.metrics.IncStoreError("cas")
		return false, ErrStorageUnavailable
	}
	swapped, err := s.inner.CompareAndSet(ctx, key, expected, next)
	if err != nil {
		s.breaker.OnFailure()
		s.metrics.IncStoreError("cas")
		return false, storageError(err)
	}
	s.breaker.OnSuccess()
	return swapped, nil
}

// Healthy reports whether the store can be reached.
func (s *GuardedStore) Healthy(ctx context.Context) bool {
	if s == nil || s.inner == nil {
		return false
	}
	if s.breaker != nil && s.breaker.State() == CircuitOpen {
		return false
	}
	return s.inner.Healthy(ctx)
}

// storageError normalizes a store failure, including context timeouts,
// to the storage-unavailable code while preserving the cause for logs.
func storageError(err error) error {
	if CodeOf(err) == CodeStorageUnavailable {
		return err
	}
	return Wrap(CodeStorageUnavailable, "storage unavailable", err)
}
