// Package tierlimit defines core quota request and policy models.
package tierlimit

import "time"

// CheckQuotaRequest captures a single quota decision request.
type CheckQuotaRequest struct {
	TraceID      string
	PrincipalID  string
	Resource     string
	Tier         string
	CustomLimits *CustomLimits
}

// CheckQuotaResponse reports the outcome of a quota decision.
type CheckQuotaResponse struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	Window     time.Duration
	ResetAt    time.Time
	RetryAfter time.Duration
}

// TierPolicy describes the quota granted to a subscription tier.
type TierPolicy struct {
	BaseLimit  int64
	BurstLimit int64
	Window     time.Duration
}

// CustomLimits carries negotiated limits merged over a tier default.
// A zero Window keeps the tier's window.
type CustomLimits struct {
	BaseLimit  int64
	BurstLimit int64
	Window     time.Duration
}

// Override is a persisted per-principal custom limit.
type Override struct {
	PrincipalID string
	Resource    string
	BaseLimit   int64
	BurstLimit  int64
	Window      time.Duration
	Version     int64
	UpdatedAt   time.Time
}

// CreateOverrideRequest captures override creation intent.
type CreateOverrideRequest struct {
	PrincipalID    string
	Resource       string
	BaseLimit      int64
	BurstLimit     int64
	Window         time.Duration
	IdempotencyKey string
}

// UpdateOverrideRequest captures override updates.
type UpdateOverrideRequest struct {
	PrincipalID     string
	Resource        string
	BaseLimit       int64
	BurstLimit      int64
	Window          time.Duration
	ExpectedVersion int64
}

// WindowState is the persisted counter pair for one key's current window.
// Count tracks base quota consumption, BurstUsed tracks burst consumption;
// the two stay separate so exhausting the nominal quota is observable on
// its own.
type WindowState struct {
	Count       int64
	BurstUsed   int64
	WindowStart time.Time
	WindowEnd   time.Time
}

// Equal reports whether two states carry the same counters and window.
// Timestamps compare by instant, so states that round-trip through a
// store encoding still match.
func (s WindowState) Equal(other WindowState) bool {
	return s.Count == other.Count &&
		s.BurstUsed == other.BurstUsed &&
		s.WindowStart.Equal(other.WindowStart) &&
		s.WindowEnd.Equal(other.WindowEnd)
}

// Decision captures the evaluated quota outcome.
type Decision struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	ResetAt    time.Time
	RetryAfter time.Duration
}
