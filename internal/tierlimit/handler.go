// Package tierlimit provides the quota check handler.
package tierlimit

import (
	"context"
	"errors"
	"time"

	"tierlimit/internal/tierlimit/observability"
)

// QuotaHandler resolves tier policies and evaluates quota requests.
type QuotaHandler struct {
	tiers     *TierRegistry
	overrides *OverrideCache
	limiter   Limiter
	keys      *KeyBuilder
	respPool  *ResponsePool
	tracer    observability.Tracer
	sampler   observability.Sampler
	metrics   observability.Metrics
	now       func() time.Time
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(tiers *TierRegistry, overrides *OverrideCache, limiter Limiter, keys *KeyBuilder, respPool *ResponsePool, tracer observability.Tracer, sampler observability.Sampler, metrics observability.Metrics, now func() time.Time) *QuotaHandler {
	if tracer == nil {
		tracer = observability.NoopTracer{}
	}
	if sampler == nil {
		sampler = observability.NewHashSampler(100)
	}
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	if now == nil {
		now = time.Now
	}
	return &QuotaHandler{
		tiers:     tiers,
		overrides: overrides,
		limiter:   limiter,
		keys:      keys,
		respPool:  respPool,
		tracer:    tracer,
		sampler:   sampler,
		metrics:   metrics,
		now:       now,
	}
}

// CheckQuota evaluates one quota request. Unknown tiers and storage
// failures propagate as errors; a storage failure never yields an
// allow decision.
func (h *QuotaHandler) CheckQuota(ctx context.Context, req *CheckQuotaRequest) (*CheckQuotaResponse, error) {
	if req == nil {
		return nil, ErrInvalidInput
	}
	if req.PrincipalID == "" || req.Resource == "" || req.Tier == "" {
		return nil, ErrInvalidInput
	}
	if h == nil || h.tiers == nil || h.limiter == nil || h.keys == nil || h.respPool == nil {
		return nil, errors.New("handler is not initialized")
	}
	start := time.Now()
	span := observability.Span(nil)
	if h.sampler.Sampled(req.TraceID) {
		ctx, span = h.tracer.StartSpan(ctx, "checkQuota")
		span.SetAttribute("principal_id", req.PrincipalID)
		span.SetAttribute("resource", req.Resource)
		span.SetAttribute("tier", req.Tier)
	}
	defer func() {
		if span != nil {
			span.End()
		}
		h.metrics.ObserveLatency("checkQuota", time.Since(start))
	}()

	policy, err := h.resolvePolicy(req)
	if err != nil {
		h.metrics.IncCheck("unknown_tier", req.Tier)
		if span != nil {
			span.RecordError(err)
		}
		return nil, err
	}

	key := h.keys.BuildKey(req.PrincipalID, req.Resource)
	defer h.keys.ReleaseKey(key)

	decision, err := h.limiter.Allow(ctx, key, policy, h.now())
	if err != nil {
		h.metrics.IncCheck("storage_error", req.Tier)
		if span != nil {
			span.RecordError(err)
		}
		return nil, err
	}

	resp := h.respPool.Get()
	resp.Allowed = decision.Allowed
	resp.Remaining = decision.Remaining
	resp.Limit = decision.Limit
	resp.Window = policy.Window
	resp.ResetAt = decision.ResetAt
	resp.RetryAfter = decision.RetryAfter
	if decision.Allowed {
		h.metrics.IncCheck("allowed", req.Tier)
	} else {
		h.metrics.IncCheck("denied", req.Tier)
	}
	return resp, nil
}

// CheckQuotaBatch evaluates quota requests in order. Any tier or
// storage error aborts the batch, since it would apply to every
// remaining item as well.
func (h *QuotaHandler) CheckQuotaBatch(ctx context.Context, reqs []*CheckQuotaRequest) ([]*CheckQuotaResponse, error) {
	if len(reqs) == 0 {
		return []*CheckQuotaResponse{}, nil
	}
	if h == nil || h.tiers == nil || h.limiter == nil || h.keys == nil || h.respPool == nil {
		return nil, errors.New("handler is not initialized")
	}
	start := time.Now()
	defer func() {
		h.metrics.ObserveLatency("checkQuotaBatch", time.Since(start))
	}()

	responses := make([]*CheckQuotaResponse, len(reqs))
	for i, req := range reqs {
		resp, err := h.CheckQuota(ctx, req)
		if err != nil {
			for _, issued := range responses[:i] {
				h.respPool.Put(issued)
			}
			return nil, err
		}
		responses[i] = resp
	}
	return responses, nil
}

// ReleaseResponse releases a pooled response.
func (h *QuotaHandler) ReleaseResponse(resp *CheckQuotaResponse) {
	if h == nil || h.respPool == nil || resp == nil {
		return
	}
	h.respPool.Put(resp)
}

// resolvePolicy merges custom limits over the tier default. Per-call
// limits win over persisted overrides; invalid limits are discarded
// and the tier default applies.
func (h *QuotaHandler) resolvePolicy(req *CheckQuotaRequest) (TierPolicy, error) {
	policy, err := h.tiers.Policy(req.Tier)
	if err != nil {
		return TierPolicy{}, err
	}
	custom := req.CustomLimits
	if custom == nil && h.overrides != nil {
		if override, ok := h.overrides.Get(req.PrincipalID, req.Resource); ok {
			custom = &CustomLimits{
				BaseLimit:  override.BaseLimit,
				BurstLimit: override.BurstLimit,
				Window:     override.Window,
			}
		}
	}
	if custom == nil {
		return policy, nil
	}
	merged, ok := mergeCustomLimits(policy, custom)
	if !ok {
		h.metrics.IncOverrideDiscarded("invalid_limits")
		return policy, nil
	}
	return merged, nil
}
