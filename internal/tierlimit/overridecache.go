// Package tierlimit provides override caching for the hot path.
package tierlimit

import (
	"sync"
	"sync/atomic"
)

// principalOverrides stores overrides per resource for a principal.
type principalOverrides struct {
	byResource map[string]*Override
}

// overridesSnapshot stores overrides per principal.
type overridesSnapshot struct {
	byPrincipal map[string]*principalOverrides
}

// OverrideCache serves negotiated overrides with copy-on-write
// snapshots, so quota checks never block on admin writes.
type OverrideCache struct {
	snap atomic.Value
	mu   sync.Mutex
}

// NewOverrideCache creates a cache with an empty snapshot.
func NewOverrideCache() *OverrideCache {
	cache := &OverrideCache{}
	cache.snap.Store(&overridesSnapshot{byPrincipal: map[string]*principalOverrides{}})
	return cache
}

// Get returns the override for the given principal/resource.
func (oc *OverrideCache) Get(principalID, resource string) (*Override, bool) {
	snapshot := oc.snapshot()
	entries, ok := snapshot.byPrincipal[principalID]
	if !ok || entries == nil {
		return nil, false
	}
	override, ok := entries.byResource[resource]
	return override, ok
}

// List returns all overrides for the principal.
func (oc *OverrideCache) List(principalID string) []*Override {
	snapshot := oc.snapshot()
	entries, ok := snapshot.byPrincipal[principalID]
	if !ok || entries == nil {
		return nil
	}
	if len(entries.byResource) == 0 {
		return []*Override{}
	}
	overrides := make([]*Override, 0, len(entries.byResource))
	for _, override := range entries.byResource {
		overrides = append(overrides, override)
	}
	return overrides
}

// ReplaceAll replaces the entire snapshot with the provided overrides.
func (oc *OverrideCache) ReplaceAll(overrides []*Override) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	counts := make(map[string]int)
	for _, override := range overrides {
		if override == nil {
			continue
		}
		counts[override.PrincipalID]++
	}

	byPrincipal := make(map[string]*principalOverrides, len(counts))
	for principalID, count := range counts {
		byPrincipal[principalID] = &principalOverrides{byResource: make(map[string]*Override, count)}
	}

	for _, override := range overrides {
		if override == nil {
			continue
		}
		clone := cloneOverride(override)
		byPrincipal[clone.PrincipalID].byResource[clone.Resource] = clone
	}

	oc.snap.Store(&overridesSnapshot{byPrincipal: byPrincipal})
}

// UpsertIfNewer updates an override if it has a newer version.
func (oc *OverrideCache) UpsertIfNewer(override *Override) {
	if override == nil {
		return
	}

	oc.mu.Lock()
	defer oc.mu.Unlock()

	snapshot := oc.snapshot()
	if entries, ok := snapshot.byPrincipal[override.PrincipalID]; ok && entries != nil {
		if existing, ok := entries.byResource[override.Resource]; ok && existing != nil {
			if override.Version <= existing.Version {
				return
			}
		}
	}

	byPrincipal := copyPrincipalMap(snapshot.byPrincipal)
	old := snapshot.byPrincipal[override.PrincipalID]
	var byResource map[string]*Override
	if old == nil {
		byResource = make(map[string]*Override, 1)
	} else {
		byResource = copyResourceMap(old.byResource)
	}
	byResource[override.Resource] = cloneOverride(override)
	byPrincipal[override.PrincipalID] = &principalOverrides{byResource: byResource}

	oc.snap.Store(&overridesSnapshot{byPrincipal: byPrincipal})
}

// DeleteIfOlderOrEqual removes an override if its version is older or equal.
func (oc *OverrideCache) DeleteIfOlderOrEqual(principalID, resource string, version int64) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	snapshot := oc.snapshot()
	old, ok := snapshot.byPrincipal[principalID]
	if !ok || old == nil {
		return
	}
	existing, ok := old.byResource[resource]
	if !ok || existing == nil {
		return
	}
	if existing.Version > version {
		return
	}

	byPrincipal := copyPrincipalMap(snapshot.byPrincipal)
	byResource := copyResourceMap(old.byResource)
	delete(byResource, resource)
	if len(byResource) == 0 {
		delete(byPrincipal, principalID)
	} else {
		byPrincipal[principalID] = &principalOverrides{byResource: byResource}
	}

	oc.snap.Store(&overridesSnapshot{byPrincipal: byPrincipal})
}

func (oc *OverrideCache) snapshot() *overridesSnapshot {
	if snapshot, ok := oc.snap.Load().(*overridesSnapshot); ok && snapshot != nil {
		return snapshot
	}
	return &overridesSnapshot{byPrincipal: map[string]*principalOverrides{}}
}

func cloneOverride(override *Override) *Override {
	if override == nil {
		return nil
	}
	clone := *override
	return &clone
}

func copyPrincipalMap(old map[string]*principalOverrides) map[string]*principalOverrides {
	copyMap := make(map[string]*principalOverrides, len(old))
	for key, value := range old {
		copyMap[key] = value
	}
	return copyMap
}

func copyResourceMap(old map[string]*Override) map[string]*Override {
	copyMap := make(map[string]*Override, len(old))
	for key, value := range old {
		copyMap[key] = value
	}
	return copyMap
}
