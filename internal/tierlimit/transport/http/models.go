// Package httptransport provides HTTP transport models.
package httptransport

import (
	"time"

	"tierlimit/internal/tierlimit"
)

type httpCustomLimits struct {
	BaseLimit  int64         `json:"baseLimit"`
	BurstLimit int64         `json:"burstLimit"`
	Window     time.Duration `json:"window"`
}

type httpCheckRequest struct {
	TraceID      string            `json:"traceID"`
	PrincipalID  string            `json:"principalID"`
	Resource     string            `json:"resource"`
	Tier         string            `json:"tier"`
	CustomLimits *httpCustomLimits `json:"customLimits,omitempty"`
}

type httpCheckResponse struct {
	Allowed    bool      `json:"allowed"`
	Remaining  int64     `json:"remaining"`
	Limit      int64     `json:"limit"`
	Window     string    `json:"window"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int64     `json:"retryAfter"`
}

type httpCreateOverrideRequest struct {
	PrincipalID    string        `json:"principalID"`
	Resource       string        `json:"resource"`
	BaseLimit      int64         `json:"baseLimit"`
	BurstLimit     int64         `json:"burstLimit"`
	Window         time.Duration `json:"window"`
	IdempotencyKey string        `json:"idempotencyKey"`
}

type httpUpdateOverrideRequest struct {
	PrincipalID     string        `json:"principalID"`
	Resource        string        `json:"resource"`
	BaseLimit       int64         `json:"baseLimit"`
	BurstLimit      int64         `json:"burstLimit"`
	Window          time.Duration `json:"window"`
	ExpectedVersion int64         `json:"expectedVersion"`
}

type httpOverrideResponse struct {
	PrincipalID string        `json:"principalID"`
	Resource    string        `json:"resource"`
	BaseLimit   int64         `json:"baseLimit"`
	BurstLimit  int64         `json:"burstLimit"`
	Window      time.Duration `json:"window"`
	Version     int64         `json:"version"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func toCheckQuotaRequest(req httpCheckRequest) *tierlimit.CheckQuotaRequest {
	out := &tierlimit.CheckQuotaRequest{
		TraceID:     req.TraceID,
		PrincipalID: req.PrincipalID,
		Resource:    req.Resource,
		Tier:        req.Tier,
	}
	if req.CustomLimits != nil {
		out.CustomLimits = &tierlimit.CustomLimits{
			BaseLimit:  req.CustomLimits.BaseLimit,
			BurstLimit: req.CustomLimits.BurstLimit,
			Window:     req.CustomLimits.Window,
		}
	}
	return out
}

func toCreateOverrideRequest(req httpCreateOverrideRequest) *tierlimit.CreateOverrideRequest {
	return &tierlimit.CreateOverrideRequest{
		PrincipalID:    req.PrincipalID,
		Resource:       req.Resource,
		BaseLimit:      req.BaseLimit,
		BurstLimit:     req.BurstLimit,
		Window:         req.Window,
		IdempotencyKey: req.IdempotencyKey,
	}
}

func toUpdateOverrideRequest(req httpUpdateOverrideRequest) *tierlimit.UpdateOverrideRequest {
	return &tierlimit.UpdateOverrideRequest{
		PrincipalID:     req.PrincipalID,
		Resource:        req.Resource,
		BaseLimit:       req.BaseLimit,
		BurstLimit:      req.BurstLimit,
		Window:          req.Window,
		ExpectedVersion: req.ExpectedVersion,
	}
}

func fromOverride(override *tierlimit.Override) httpOverrideResponse {
	if override == nil {
		return httpOverrideResponse{}
	}
	return httpOverrideResponse{
		PrincipalID: override.PrincipalID,
		Resource:    override.Resource,
		BaseLimit:   override.BaseLimit,
		BurstLimit:  override.BurstLimit,
		Window:      override.Window,
		Version:     override.Version,
		UpdatedAt:   override.UpdatedAt,
	}
}

func fromCheckQuotaResponse(resp *tierlimit.CheckQuotaResponse) httpCheckResponse {
	if resp == nil {
		return httpCheckResponse{}
	}
	var retry int64
	if !resp.Allowed && resp.RetryAfter > 0 {
		retry = int64(resp.RetryAfter / time.Second)
		if resp.RetryAfter%time.Second != 0 {
			retry++
		}
	}
	return httpCheckResponse{
		Allowed:    resp.Allowed,
		Remaining:  resp.Remaining,
		Limit:      resp.Limit,
		Window:     tierlimit.WindowLabel(resp.Window),
		ResetAt:    resp.ResetAt.UTC(),
		RetryAfter: retry,
	}
}
