// Package tierlimit defines service and storage interfaces.
package tierlimit

import (
	"context"
	"time"
)

// QuotaService evaluates quota requests.
type QuotaService interface {
	CheckQuota(ctx context.Context, req *CheckQuotaRequest) (*CheckQuotaResponse, error)
	CheckQuotaBatch(ctx context.Context, reqs []*CheckQuotaRequest) ([]*CheckQuotaResponse, error)
	ReleaseResponse(resp *CheckQuotaResponse)
}

// AdminService manages negotiated per-principal overrides.
type AdminService interface {
	CreateOverride(ctx context.Context, req *CreateOverrideRequest) (*Override, error)
	UpdateOverride(ctx context.Context, req *UpdateOverrideRequest) (*Override, error)
	DeleteOverride(ctx context.Context, principalID, resource string, expectedVersion int64) error
	GetOverride(ctx context.Context, principalID, resource string) (*Override, error)
	ListOverrides(ctx context.Context, principalID string) ([]*Override, error)
}

// Transport exposes services over a transport layer.
type Transport interface {
	ServeQuota(service QuotaService) error
	ServeAdmin(service AdminService) error
	Shutdown(ctx context.Context) error
}

// StateStore holds per-key window counters with atomic
// read-modify-write semantics. Keys are fully independent;
// implementations must not serialize unrelated keys behind one lock.
type StateStore interface {
	// Get returns the state for key, reporting absence via ok.
	Get(ctx context.Context, key []byte) (WindowState, bool, error)
	// CompareAndSet writes next only if the stored state still equals
	// expected. A nil expected means "create only if absent". It reports
	// false on conflict without writing.
	CompareAndSet(ctx context.Context, key []byte, expected *WindowState, next WindowState) (bool, error)
	// Healthy reports whether the store can currently be reached.
	Healthy(ctx context.Context) bool
}

// Limiter decides whether a request against a key is admitted under a
// policy, at the supplied instant.
type Limiter interface {
	Allow(ctx context.Context, key []byte, policy TierPolicy, now time.Time) (*Decision, error)
}

// OverrideDB persists negotiated overrides.
type OverrideDB interface {
	Create(ctx context.Context, req *CreateOverrideRequest) (*Override, error)
	Update(ctx context.Context, req *UpdateOverrideRequest) (*Override, error)
	Delete(ctx context.Context, principalID, resource string, expectedVersion int64) error
	Get(ctx context.Context, principalID, resource string) (*Override, error)
	List(ctx context.Context, principalID string) ([]*Override, error)
	LoadAll(ctx context.Context) ([]*Override, error)
}
