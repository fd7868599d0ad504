package tierlimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-package StateStore with injectable failures.
type fakeStore struct {
	mu     sync.Mutex
	states map[string]WindowState
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]WindowState)}
}

func (s *fakeStore) Get(ctx context.Context, key []byte) (WindowState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return WindowState{}, false, s.err
	}
	state, ok := s.states[string(key)]
	return state, ok, nil
}

func (s *fakeStore) CompareAndSet(ctx context.Context, key []byte, expected *WindowState, next WindowState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	current, ok := s.states[string(key)]
	if expected == nil {
		if ok {
			return false, nil
		}
	} else {
		if !ok || !current.Equal(*expected) {
			return false, nil
		}
	}
	s.states[string(key)] = next
	return true, nil
}

func (s *fakeStore) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err == nil
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func testPolicy(base, burst int64) TierPolicy {
	return TierPolicy{BaseLimit: base, BurstLimit: burst, Window: time.Hour}
}

func TestWindowLimiter_AllowsWithinBase(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(3, 1)

	for i := int64(0); i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if want := 4 - (i + 1); decision.Remaining != want {
			t.Fatalf("request %d: remaining %d, want %d", i, decision.Remaining, want)
		}
		if decision.Limit != 3 {
			t.Fatalf("limit header must carry the base limit, got %d", decision.Limit)
		}
	}
}

func TestWindowLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(2, 1)

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed via base or burst", i)
		}
	}

	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("request past base+burst must be denied")
	}
	if decision.Remaining != 0 {
		t.Fatalf("denied remaining must be 0, got %d", decision.Remaining)
	}
	if decision.RetryAfter != time.Hour {
		t.Fatalf("retryAfter should span the rest of the window, got %v", decision.RetryAfter)
	}
	if !decision.ResetAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("resetAt should be the window end, got %v", decision.ResetAt)
	}
}

func TestWindowLimiter_DenialLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(1, 1)

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(context.Background(), []byte("k"), policy, now); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
	}
	before := store.states["k"]
	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("deny %d: %v", i, err)
		}
		if decision.Allowed {
			t.Fatalf("deny %d: unexpected allow", i)
		}
	}
	after := store.states["k"]
	if !before.Equal(after) {
		t.Fatalf("denials mutated state: before=%#v after=%#v", before, after)
	}
}

func TestWindowLimiter_WindowRollover(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(1, 1)

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(context.Background(), []byte("k"), policy, start); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
	}
	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, start)
	if err != nil || decision.Allowed {
		t.Fatalf("expected denial before rollover: %v %#v", err, decision)
	}

	later := start.Add(policy.Window)
	decision, err = limiter.Allow(context.Background(), []byte("k"), policy, later)
	if err != nil {
		t.Fatalf("allow after rollover: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow in the fresh window")
	}
	if !decision.ResetAt.Equal(later.Add(policy.Window)) {
		t.Fatalf("fresh window must anchor at now: %v", decision.ResetAt)
	}
}

func TestWindowLimiter_KeysAreIsolated(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(1, 1)

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(context.Background(), []byte("a"), policy, now); err != nil {
			t.Fatalf("allow a %d: %v", i, err)
		}
	}
	decision, err := limiter.Allow(context.Background(), []byte("b"), policy, now)
	if err != nil {
		t.Fatalf("allow b: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("exhausting key a must not affect key b")
	}
}

func TestWindowLimiter_StorageFailureIsNotAllow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.fail(ErrStorageUnavailable)
	limiter := NewWindowLimiter(store, nil)
	now := time.Now()

	decision, err := limiter.Allow(context.Background(), []byte("k"), testPolicy(10, 1), now)
	if err == nil {
		t.Fatalf("expected storage error")
	}
	if decision != nil {
		t.Fatalf("storage failure must not produce a decision")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWindowLimiter_ContextCancellation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Allow(ctx, []byte("k"), testPolicy(10, 1), time.Now())
	if err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if CodeOf(err) != CodeStorageUnavailable {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
}

func TestWindowLimiter_ExactUnderConcurrency(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(100, 10)

	const callers = 200
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			allowed <- decision.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	admitted := 0
	for ok := range allowed {
		if ok {
			admitted++
		}
	}
	if admitted != 110 {
		t.Fatalf("admitted %d, want exactly base+burst=110", admitted)
	}
	state := store.states["k"]
	if state.Count != 100 || state.BurstUsed != 10 {
		t.Fatalf("unexpected final state: %#v", state)
	}
}

func TestWindowLimiter_FreeTierSequential(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(100, 10)

	for i := 0; i < 100; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d within the base limit must be allowed", i)
		}
	}
	state := store.states["k"]
	if state.Count != 100 || state.BurstUsed != 0 {
		t.Fatalf("sequential calls must not spill into burst: %#v", state)
	}
	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
	if err != nil {
		t.Fatalf("101st call: %v", err)
	}
	if !decision.Allowed || decision.Limit != 100 {
		t.Fatalf("101st call should land in burst with limit 100: %#v", decision)
	}
}

func TestWindowLimiter_ProfessionalExhaustionAndRollover(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	limiter := NewWindowLimiter(store, nil)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy(10_000, 1_000)

	for i := 0; i < 11_000; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, start)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d within the pool must be allowed", i)
		}
	}
	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, start)
	if err != nil || decision.Allowed {
		t.Fatalf("exhausted key must deny: %v %#v", err, decision)
	}

	decision, err = limiter.Allow(context.Background(), []byte("k"), policy, start.Add(policy.Window))
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow in the fresh window")
	}
	state := store.states["k"]
	if state.Count != 1 || state.BurstUsed != 0 {
		t.Fatalf("fresh window must restart counters: %#v", state)
	}
}

func TestCeilSeconds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, time.Second},
		{-time.Minute, time.Second},
		{300 * time.Millisecond, time.Second},
		{time.Second, time.Second},
		{1500 * time.Millisecond, 2 * time.Second},
		{59*time.Minute + 1*time.Nanosecond, 59*time.Minute + time.Second},
	}
	for _, tc := range cases {
		if got := ceilSeconds(tc.in); got != tc.want {
			t.Fatalf("ceilSeconds(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
