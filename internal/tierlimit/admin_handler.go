// Package tierlimit provides override administration.
package tierlimit

import (
	"context"
	"errors"
)

// AdminHandler manages negotiated overrides and keeps the hot-path
// cache in step with the database.
type AdminHandler struct {
	db    OverrideDB
	cache *OverrideCache
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db OverrideDB, cache *OverrideCache) *AdminHandler {
	return &AdminHandler{db: db, cache: cache}
}

// CreateOverride creates a new override.
func (h *AdminHandler) CreateOverride(ctx context.Context, req *CreateOverrideRequest) (*Override, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("override db is not configured")
	}
	override, err := h.db.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		h.cache.UpsertIfNewer(override)
	}
	return override, nil
}

// UpdateOverride updates an existing override.
func (h *AdminHandler) UpdateOverride(ctx context.Context, req *UpdateOverrideRequest) (*Override, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("override db is not configured")
	}
	override, err := h.db.Update(ctx, req)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		h.cache.UpsertIfNewer(override)
	}
	return override, nil
}

// DeleteOverride deletes an override by principal/resource.
func (h *AdminHandler) DeleteOverride(ctx context.Context, principalID, resource string, expectedVersion int64) error {
	if h == nil || h.db == nil {
		return errors.New("override db is not configured")
	}
	if err := h.db.Delete(ctx, principalID, resource, expectedVersion); err != nil {
		return err
	}
	if h.cache != nil {
		h.cache.DeleteIfOlderOrEqual(principalID, resource, expectedVersion)
	}
	return nil
}

// GetOverride fetches an override by principal/resource.
func (h *AdminHandler) GetOverride(ctx context.Context, principalID, resource string) (*Override, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("override db is not configured")
	}
	return h.db.Get(ctx, principalID, resource)
}

// ListOverrides lists overrides for a principal.
func (h *AdminHandler) ListOverrides(ctx context.Context, principalID string) ([]*Override, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("override db is not configured")
	}
	return h.db.List(ctx, principalID)
}
