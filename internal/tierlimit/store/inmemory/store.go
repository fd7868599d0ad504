// Package inmemory provides the in-process state store.
package inmemory

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"tierlimit/internal/tierlimit"
)

const defaultShardCount = 64

// Store keeps window states in sharded maps. Shards keep unrelated
// keys from contending on one lock; within a shard, compare-and-set
// runs under the shard mutex so the read-modify-write cycle stays
// atomic.
type Store struct {
	shards  []*shard
	now     func() time.Time
	grace   time.Duration
	healthy atomic.Bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]tierlimit.WindowState
	lru     *lruKeys
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	shardCount      int
	maxKeysPerShard int
	grace           time.Duration
	now             func() time.Time
}

// WithShardCount sets the number of shards.
func WithShardCount(n int) Option {
	return func(o *storeOptions) { o.shardCount = n }
}

// WithMaxKeysPerShard caps tracked keys per shard; least recently used
// keys are dropped beyond the cap.
func WithMaxKeysPerShard(n int) Option {
	return func(o *storeOptions) { o.maxKeysPerShard = n }
}

// WithGrace sets how long an expired window lingers before eviction.
func WithGrace(d time.Duration) Option {
	return func(o *storeOptions) { o.grace = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// NewStore constructs an in-memory store.
func NewStore(opts ...Option) *Store {
	options := storeOptions{
		shardCount: defaultShardCount,
		grace:      10 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.shardCount <= 0 {
		options.shardCount = defaultShardCount
	}
	if options.now == nil {
		options.now = time.Now
	}

	store := &Store{
		shards: make([]*shard, options.shardCount),
		now:    options.now,
		grace:  options.grace,
	}
	for i := range store.shards {
		store.shards[i] = &shard{
			entries: make(map[string]tierlimit.WindowState),
			lru:     newLRUKeys(options.maxKeysPerShard),
		}
	}
	store.healthy.Store(true)
	return store
}

// Get returns the state for key, evicting it first if its window has
// been expired for longer than the grace period.
func (s *Store) Get(ctx context.Context, key []byte) (tierlimit.WindowState, bool, error) {
	if s == nil || !s.healthy.Load() {
		return tierlimit.WindowState{}, false, tierlimit.ErrStorageUnavailable
	}
	sh := s.shard(key)
	k := string(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.entries[k]
	if !ok {
		return tierlimit.WindowState{}, false, nil
	}
	if s.expired(state, s.now()) {
		delete(sh.entries, k)
		sh.lru.remove(k)
		return tierlimit.WindowState{}, false, nil
	}
	sh.lru.touch(k)
	return state, true, nil
}

// CompareAndSet writes next only if the stored state still equals
// expected; nil expected means "create only if absent".
func (s *Store) CompareAndSet(ctx context.Context, key []byte, expected *tierlimit.WindowState, next tierlimit.WindowState) (bool, error) {
	if s == nil || !s.healthy.Load() {
		return false, tierlimit.ErrStorageUnavailable
	}
	sh := s.shard(key)
	k := string(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.entries[k]
	if ok && s.expired(current, s.now()) {
		delete(sh.entries, k)
		sh.lru.remove(k)
		ok = false
	}
	if expected == nil {
		if ok {
			return false, nil
		}
	} else {
		if !ok || !current.Equal(*expected) {
			return false, nil
		}
	}

	sh.entries[k] = next
	sh.lru.touch(k)
	for _, evicted := range sh.lru.evictIfNeeded() {
		delete(sh.entries, evicted)
	}
	return true, nil
}

// Healthy reports whether the store is accepting operations.
func (s *Store) Healthy(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.healthy.Load()
}

// SetHealthy flips store availability; used to exercise failure paths.
func (s *Store) SetHealthy(v bool) {
	if s == nil {
		return
	}
	s.healthy.Store(v)
}

// Sweep drops every entry whose window expired before the grace cutoff.
func (s *Store) Sweep(now time.Time) int {
	if s == nil {
		return 0
	}
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, state := range sh.entries {
			if s.expired(state, now) {
				delete(sh.entries, k)
				sh.lru.remove(k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps expired entries until the context is canceled.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if s == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.now())
			}
		}
	}()
}

// Len reports the number of tracked keys.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

func (s *Store) shard(key []byte) *shard {
	hasher := fnv.New32a()
	_, _ = hasher.Write(key)
	return s.shards[hasher.Sum32()%uint32(len(s.shards))]
}

func (s *Store) expired(state tierlimit.WindowState, now time.Time) bool {
	if s.grace < 0 {
		return false
	}
	return !now.Before(state.WindowEnd.Add(s.grace))
}
