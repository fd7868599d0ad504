package tierlimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := TierPolicy{BaseLimit: 4, BurstLimit: 1, Window: time.Hour}

	// A fresh bucket holds base+burst tokens.
	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should drain the initial bucket", i)
		}
	}

	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("empty bucket must deny")
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("denied decision needs a retry hint, got %v", decision.RetryAfter)
	}
}

func TestTokenBucketLimiter_RefillsOverTime(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := TierPolicy{BaseLimit: 3600, BurstLimit: 360, Window: time.Hour}

	for i := 0; i < 3960; i++ {
		decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
		if err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("drain %d: bucket emptied early", i)
		}
	}
	decision, err := limiter.Allow(context.Background(), []byte("k"), policy, now)
	if err != nil || decision.Allowed {
		t.Fatalf("expected empty bucket: err=%v allowed=%v", err, decision.Allowed)
	}

	// One token per second at 3600/hour.
	later := now.Add(2 * time.Second)
	decision, err = limiter.Allow(context.Background(), []byte("k"), policy, later)
	if err != nil {
		t.Fatalf("refill allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected refill to admit after two seconds")
	}
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := TierPolicy{BaseLimit: 10, BurstLimit: 1, Window: time.Hour}

	if _, err := limiter.Allow(context.Background(), []byte("idle"), policy, now); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), []byte("active"), policy, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("allow: %v", err)
	}

	limiter.Cleanup(now.Add(2 * time.Minute))
	if got := limiter.Len(); got != 1 {
		t.Fatalf("expected idle entry to be dropped, have %d", got)
	}
}

func TestTokenBucketLimiter_PolicyChangeResetsBucket(t *testing.T) {
	t.Parallel()

	limiter := NewTokenBucketLimiter(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	small := TierPolicy{BaseLimit: 1, BurstLimit: 1, Window: time.Hour}
	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(context.Background(), []byte("k"), small, now); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
	}
	decision, err := limiter.Allow(context.Background(), []byte("k"), small, now)
	if err != nil || decision.Allowed {
		t.Fatalf("expected empty bucket under the small policy")
	}

	big := TierPolicy{BaseLimit: 100, BurstLimit: 10, Window: time.Hour}
	decision, err = limiter.Allow(context.Background(), []byte("k"), big, now)
	if err != nil {
		t.Fatalf("allow after upgrade: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("a policy change must take effect immediately")
	}
}
