package tierlimit

import (
	"errors"
	"testing"
	"time"
)

func TestTierRegistry_Defaults(t *testing.T) {
	t.Parallel()

	registry := NewTierRegistry()
	cases := []struct {
		tier  string
		base  int64
		burst int64
	}{
		{TierFree, 100, 10},
		{TierProfessional, 10_000, 1_000},
		{TierEnterprise, 50_000, 5_000},
	}
	for _, tc := range cases {
		policy, err := registry.Policy(tc.tier)
		if err != nil {
			t.Fatalf("policy for %s: %v", tc.tier, err)
		}
		if policy.BaseLimit != tc.base || policy.BurstLimit != tc.burst {
			t.Fatalf("tier %s: got %d/%d, want %d/%d", tc.tier, policy.BaseLimit, policy.BurstLimit, tc.base, tc.burst)
		}
		if policy.Window != time.Hour {
			t.Fatalf("tier %s: unexpected window %v", tc.tier, policy.Window)
		}
	}
}

func TestTierRegistry_UnknownTier(t *testing.T) {
	t.Parallel()

	registry := NewTierRegistry()
	_, err := registry.Policy("platinum")
	if err == nil {
		t.Fatalf("expected error for unknown tier")
	}
	if CodeOf(err) != CodeUnknownTier {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestTierRegistry_RegisterValidation(t *testing.T) {
	t.Parallel()

	registry := NewTierRegistry()
	cases := []struct {
		name   string
		policy TierPolicy
	}{
		{"zero base", TierPolicy{BaseLimit: 0, BurstLimit: 1, Window: time.Hour}},
		{"zero burst", TierPolicy{BaseLimit: 10, BurstLimit: 0, Window: time.Hour}},
		{"burst over base", TierPolicy{BaseLimit: 10, BurstLimit: 11, Window: time.Hour}},
		{"zero window", TierPolicy{BaseLimit: 10, BurstLimit: 1}},
	}
	for _, tc := range cases {
		if err := registry.Register("custom", tc.policy); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
	if err := registry.Register("custom", TierPolicy{BaseLimit: 10, BurstLimit: 1, Window: time.Minute}); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
}

func TestTierRegistry_ResolveCustomLimits(t *testing.T) {
	t.Parallel()

	registry := NewTierRegistry()

	merged, err := registry.Resolve(TierFree, &CustomLimits{BaseLimit: 500, BurstLimit: 50})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if merged.BaseLimit != 500 || merged.BurstLimit != 50 {
		t.Fatalf("custom limits not applied: %#v", merged)
	}
	if merged.Window != time.Hour {
		t.Fatalf("window should come from the tier default: %v", merged.Window)
	}

	merged, err = registry.Resolve(TierFree, &CustomLimits{BaseLimit: 500, BurstLimit: 50, Window: time.Minute})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if merged.Window != time.Minute {
		t.Fatalf("custom window not applied: %v", merged.Window)
	}
}

func TestTierRegistry_ResolveDiscardsInvalidCustomLimits(t *testing.T) {
	t.Parallel()

	registry := NewTierRegistry()
	invalid := []*CustomLimits{
		{BaseLimit: -1, BurstLimit: 5},
		{BaseLimit: 100, BurstLimit: 0},
		{BaseLimit: 100, BurstLimit: 200},
		{BaseLimit: 100, BurstLimit: 10, Window: -time.Minute},
	}
	for i, custom := range invalid {
		merged, err := registry.Resolve(TierFree, custom)
		if err != nil {
			t.Fatalf("case %d: invalid custom limits must not error: %v", i, err)
		}
		if merged.BaseLimit != 100 || merged.BurstLimit != 10 || merged.Window != time.Hour {
			t.Fatalf("case %d: expected tier default, got %#v", i, merged)
		}
	}
}
