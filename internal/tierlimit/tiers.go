// Package tierlimit provides the tier policy registry.
package tierlimit

import (
	"math"
	"sync"
	"time"
)

// Predefined tier identifiers.
const (
	TierFree         = "free"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// TierRegistry maps tier identifiers to quota policies.
type TierRegistry struct {
	mu       sync.RWMutex
	policies map[string]TierPolicy
}

// NewTierRegistry constructs a registry with the default tier table:
// free 100/hr, professional 10,000/hr, enterprise 50,000/hr, each with
// a burst allowance of 10% of the base.
func NewTierRegistry() *TierRegistry {
	registry := &TierRegistry{policies: make(map[string]TierPolicy)}
	registry.mustRegister(TierFree, 100)
	registry.mustRegister(TierProfessional, 10_000)
	registry.mustRegister(TierEnterprise, 50_000)
	return registry
}

func (r *TierRegistry) mustRegister(tier string, baseLimit int64) {
	burst := int64(math.Round(float64(baseLimit) * 0.1))
	_ = r.Register(tier, TierPolicy{BaseLimit: baseLimit, BurstLimit: burst, Window: time.Hour})
}

// Register adds or replaces a tier policy. The policy must carry a
// positive base limit, a positive burst no larger than the base, and a
// positive window.
func (r *TierRegistry) Register(tier string, policy TierPolicy) error {
	if r == nil {
		return ErrInvalidInput
	}
	if tier == "" {
		return ErrInvalidInput
	}
	if policy.BaseLimit <= 0 || policy.BurstLimit <= 0 || policy.BurstLimit > policy.BaseLimit {
		return ErrInvalidInput
	}
	if policy.Window <= 0 {
		return ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[tier] = policy
	return nil
}

// Policy returns the policy for a tier identifier.
func (r *TierRegistry) Policy(tier string) (TierPolicy, error) {
	if r == nil {
		return TierPolicy{}, ErrUnknownTier
	}
	r.mu.RLock()
	policy, ok := r.policies[tier]
	r.mu.RUnlock()
	if !ok {
		return TierPolicy{}, Wrap(CodeUnknownTier, "unknown tier: "+tier, nil)
	}
	return policy, nil
}

// Resolve returns the tier policy with custom limits merged over it.
// Invalid custom limits are discarded in favor of the tier default;
// malformed input must never widen access or crash the decision path.
func (r *TierRegistry) Resolve(tier string, custom *CustomLimits) (TierPolicy, error) {
	policy, err := r.Policy(tier)
	if err != nil {
		return TierPolicy{}, err
	}
	if custom == nil {
		return policy, nil
	}
	merged, ok := mergeCustomLimits(policy, custom)
	if !ok {
		return policy, nil
	}
	return merged, nil
}

func mergeCustomLimits(policy TierPolicy, custom *CustomLimits) (TierPolicy, bool) {
	if custom.BaseLimit <= 0 || custom.BurstLimit <= 0 {
		return policy, false
	}
	if custom.BurstLimit > custom.BaseLimit {
		return policy, false
	}
	if custom.Window < 0 {
		return policy, false
	}
	merged := TierPolicy{
		BaseLimit:  custom.BaseLimit,
		BurstLimit: custom.BurstLimit,
		Window:     policy.Window,
	}
	if custom.Window > 0 {
		merged.Window = custom.Window
	}
	return merged, true
}
