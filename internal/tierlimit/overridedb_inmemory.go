// Package tierlimit provides in-memory override storage.
package tierlimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// InMemoryOverrideDB stores negotiated overrides in memory.
type InMemoryOverrideDB struct {
	mu          sync.Mutex
	overrides   map[string]*Override
	idempotency map[string]idempotencyRecord
	now         func() time.Time
}

type idempotencyRecord struct {
	overrideKey string
	payloadHash string
}

// NewInMemoryOverrideDB constructs an in-memory override database.
func NewInMemoryOverrideDB(now func() time.Time) *InMemoryOverrideDB {
	if now == nil {
		now = time.Now
	}
	return &InMemoryOverrideDB{
		overrides:   make(map[string]*Override),
		idempotency: make(map[string]idempotencyRecord),
		now:         now,
	}
}

// Create inserts an override with idempotency enforcement.
func (db *InMemoryOverrideDB) Create(ctx context.Context, req *CreateOverrideRequest) (*Override, error) {
	if req == nil {
		return nil, ErrInvalidInput
	}
	if req.PrincipalID == "" || req.Resource == "" {
		return nil, ErrInvalidInput
	}
	if err := validateOverrideLimits(req.BaseLimit, req.BurstLimit, req.Window); err != nil {
		return nil, err
	}
	key := overrideKey(req.PrincipalID, req.Resource)
	payloadHash := HashCreatePayload(req)

	db.mu.Lock()
	defer db.mu.Unlock()

	if req.IdempotencyKey != "" {
		if record, ok := db.idempotency[req.IdempotencyKey]; ok {
			if record.payloadHash != payloadHash {
				return nil, ErrConflict
			}
			override := db.overrides[record.overrideKey]
			if override == nil {
				return nil, ErrConflict
			}
			return cloneOverride(override), nil
		}
	}

	if _, ok := db.overrides[key]; ok {
		return nil, ErrConflict
	}

	override := &Override{
		PrincipalID: req.PrincipalID,
		Resource:    req.Resource,
		BaseLimit:   req.BaseLimit,
		BurstLimit:  req.BurstLimit,
		Window:      req.Window,
		Version:     1,
		UpdatedAt:   db.now(),
	}

	db.overrides[key] = override
	if req.IdempotencyKey != "" {
		db.idempotency[req.IdempotencyKey] = idempotencyRecord{overrideKey: key, payloadHash: payloadHash}
	}

	return cloneOverride(override), nil
}

// Update modifies an override with optimistic concurrency control.
func (db *InMemoryOverrideDB) Update(ctx context.Context, req *UpdateOverrideRequest) (*Override, error) {
	if req == nil {
		return nil, ErrInvalidInput
	}
	if req.PrincipalID == "" || req.Resource == "" {
		return nil, ErrInvalidInput
	}
	if err := validateOverrideLimits(req.BaseLimit, req.BurstLimit, req.Window); err != nil {
		return nil, err
	}
	key := overrideKey(req.PrincipalID, req.Resource)

	db.mu.Lock()
	defer db.mu.Unlock()

	existing := db.overrides[key]
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.Version != req.ExpectedVersion {
		return nil, ErrConflict
	}

	override := &Override{
		PrincipalID: req.PrincipalID,
		Resource:    req.Resource,
		BaseLimit:   req.BaseLimit,
		BurstLimit:  req.BurstLimit,
		Window:      req.Window,
		Version:     existing.Version + 1,
		UpdatedAt:   db.now(),
	}

	db.overrides[key] = override
	return cloneOverride(override), nil
}

// Delete removes an override if the version matches.
func (db *InMemoryOverrideDB) Delete(ctx context.Context, principalID, resource string, expectedVersion int64) error {
	if principalID == "" || resource == "" {
		return ErrInvalidInput
	}
	key := overrideKey(principalID, resource)

	db.mu.Lock()
	defer db.mu.Unlock()

	override := db.overrides[key]
	if override == nil {
		return ErrNotFound
	}
	if override.Version != expectedVersion {
		return ErrConflict
	}
	delete(db.overrides, key)
	return nil
}

// Get returns an override by principal/resource.
func (db *InMemoryOverrideDB) Get(ctx context.Context, principalID, resource string) (*Override, error) {
	if principalID == "" || resource == "" {
		return nil, ErrInvalidInput
	}
	key := overrideKey(principalID, resource)

	db.mu.Lock()
	defer db.mu.Unlock()

	override := db.overrides[key]
	if override == nil {
		return nil, ErrNotFound
	}
	return cloneOverride(override), nil
}

// List returns all overrides for a principal.
func (db *InMemoryOverrideDB) List(ctx context.Context, principalID string) ([]*Override, error) {
	if principalID == "" {
		return nil, ErrInvalidInput
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var overrides []*Override
	for _, override := range db.overrides {
		if override == nil || override.PrincipalID != principalID {
			continue
		}
		overrides = append(overrides, cloneOverride(override))
	}
	if overrides == nil {
		return []*Override{}, nil
	}
	return overrides, nil
}

// LoadAll returns all overrides.
func (db *InMemoryOverrideDB) LoadAll(ctx context.Context) ([]*Override, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.overrides) == 0 {
		return []*Override{}, nil
	}
	overrides := make([]*Override, 0, len(db.overrides))
	for _, override := range db.overrides {
		overrides = append(overrides, cloneOverride(override))
	}
	return overrides, nil
}

func overrideKey(principalID, resource string) string {
	return principalID + "\x1f" + resource
}

// HashCreatePayload derives a stable digest of a create request so that
// idempotent retries can be distinguished from conflicting reuse of a key.
func HashCreatePayload(req *CreateOverrideRequest) string {
	if req == nil {
		return ""
	}
	hasher := sha256.New()
	_, _ = fmt.Fprintf(hasher, "%s\x1f%s\x1f%d\x1f%d\x1f%d", req.PrincipalID, req.Resource, req.BaseLimit, req.BurstLimit, req.Window)
	return hex.EncodeToString(hasher.Sum(nil))
}

// validateOverrideLimits rejects override writes that would not survive
// the resolve-time validation. Admin input is rejected loudly, unlike
// the silent discard applied to per-call custom limits.
func validateOverrideLimits(baseLimit, burstLimit int64, window time.Duration) error {
	if baseLimit <= 0 || burstLimit <= 0 {
		return ErrInvalidInput
	}
	if burstLimit > baseLimit {
		return ErrInvalidInput
	}
	if window < 0 {
		return ErrInvalidInput
	}
	return nil
}
