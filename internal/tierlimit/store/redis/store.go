// Package redisstore provides a Redis-backed state store.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tierlimit/internal/tierlimit"
)

// casScript swaps the stored payload only when it still matches the
// expected payload; an empty expected payload means "create only if
// absent". Running it server-side keeps the read-modify-write cycle
// atomic across limiter instances.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if ARGV[1] == '' then
  if current then return 0 end
else
  if not current or current ~= ARGV[1] then return 0 end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Store keeps window states in Redis, one string value per key, with
// a TTL slightly past the window end so idle keys expire on their own.
type Store struct {
	client *redis.Client
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, ":") }
}

// WithGrace sets how long an expired window lingers before its key
// expires.
func WithGrace(d time.Duration) Option {
	return func(s *Store) { s.grace = d }
}

// WithClock injects the time source used for TTL computation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore constructs a Redis-backed store.
func NewStore(client *redis.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "tierlimit:state",
		grace:  10 * time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.now == nil {
		store.now = time.Now
	}
	return store
}

// Get returns the state for key.
func (s *Store) Get(ctx context.Context, key []byte) (tierlimit.WindowState, bool, error) {
	if s == nil || s.client == nil {
		return tierlimit.WindowState{}, false, tierlimit.ErrStorageUnavailable
	}
	payload, err := s.client.Get(ctx, s.stateKey(key)).Result()
	if err == redis.Nil {
		return tierlimit.WindowState{}, false, nil
	}
	if err != nil {
		return tierlimit.WindowState{}, false, tierlimit.Wrap(tierlimit.CodeStorageUnavailable, "storage unavailable", err)
	}
	state, err := decodeState(payload)
	if err != nil {
		return tierlimit.WindowState{}, false, tierlimit.Wrap(tierlimit.CodeStorageUnavailable, "storage unavailable", err)
	}
	return state, true, nil
}

// CompareAndSet writes next only if the stored state still equals
// expected; nil expected means "create only if absent".
func (s *Store) CompareAndSet(ctx context.Context, key []byte, expected *tierlimit.WindowState, next tierlimit.WindowState) (bool, error) {
	if s == nil || s.client == nil {
		return false, tierlimit.ErrStorageUnavailable
	}
	expectedPayload := ""
	if expected != nil {
		expectedPayload = encodeState(*expected)
	}
	ttl := next.WindowEnd.Add(s.grace).Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	result, err := casScript.Run(ctx, s.client,
		[]string{s.stateKey(key)},
		expectedPayload, encodeState(next), ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, tierlimit.Wrap(tierlimit.CodeStorageUnavailable, "storage unavailable", err)
	}
	return result == 1, nil
}

// Healthy reports whether Redis answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

func (s *Store) stateKey(key []byte) string {
	return s.prefix + ":" + string(key)
}

// encodeState renders a state as count|burst|startNanos|endNanos. The
// encoding is deterministic, so payload equality in the CAS script
// matches state equality.
func encodeState(state tierlimit.WindowState) string {
	fields := []string{
		strconv.FormatInt(state.Count, 10),
		strconv.FormatInt(state.BurstUsed, 10),
		strconv.FormatInt(state.WindowStart.UnixNano(), 10),
		strconv.FormatInt(state.WindowEnd.UnixNano(), 10),
	}
	return strings.Join(fields, "|")
}

func decodeState(payload string) (tierlimit.WindowState, error) {
	fields := strings.Split(payload, "|")
	if len(fields) != 4 {
		return tierlimit.WindowState{}, tierlimit.ErrInvalidInput
	}
	values := make([]int64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return tierlimit.WindowState{}, tierlimit.ErrInvalidInput
		}
		values[i] = value
	}
	return tierlimit.WindowState{
		Count:       values[0],
		BurstUsed:   values[1],
		WindowStart: time.Unix(0, values[2]),
		WindowEnd:   time.Unix(0, values[3]),
	}, nil
}
