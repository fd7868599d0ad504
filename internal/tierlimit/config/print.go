// Package config provides CLI helpers.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"
)

// Print writes the effective config to the writer as JSON. Secrets are
// redacted.
func Print(w io.Writer, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if w == nil {
		return errors.New("writer is required")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newConfigSnapshot(cfg))
}

type durationMillis time.Duration

func (d durationMillis) MarshalJSON() ([]byte, error) {
	ms := time.Duration(d).Milliseconds()
	return []byte(strconv.FormatInt(ms, 10)), nil
}

type configSnapshot struct {
	HTTPListenAddr    string
	EnableHTTP        bool
	StoreBackend      string
	Algorithm         string
	RedisAddr         string
	RedisDB           int
	RedisKeyPrefix    string
	SQLitePath        string
	StateGrace        durationMillis
	ShardCount        int
	MaxKeysPerShard   int
	SweepInterval     durationMillis
	BreakerOptions    breakerSnapshot
	CacheSyncInterval durationMillis
	HealthInterval    durationMillis
	TraceSampleRate   int
	HTTPReadTimeout   durationMillis
	HTTPWriteTimeout  durationMillis
	HTTPIdleTimeout   durationMillis
	RequestTimeout    durationMillis
	DrainTimeout      durationMillis
	MaxBodyBytes      int64
	EnableAuth        bool
	Tiers             map[string]TierLimits
}

type breakerSnapshot struct {
	FailureThreshold int64
	OpenDuration     durationMillis
	HalfOpenMaxCalls int64
}

func newConfigSnapshot(cfg *Config) configSnapshot {
	return configSnapshot{
		HTTPListenAddr:  cfg.HTTPListenAddr,
		EnableHTTP:      cfg.EnableHTTP,
		StoreBackend:    cfg.StoreBackend,
		Algorithm:       cfg.Algorithm,
		RedisAddr:       cfg.Redis.Addr,
		RedisDB:         cfg.Redis.DB,
		RedisKeyPrefix:  cfg.Redis.KeyPrefix,
		SQLitePath:      cfg.SQLitePath,
		StateGrace:      durationMillis(cfg.StateGrace),
		ShardCount:      cfg.ShardCount,
		MaxKeysPerShard: cfg.MaxKeysPerShard,
		SweepInterval:   durationMillis(cfg.SweepInterval),
		BreakerOptions: breakerSnapshot{
			FailureThreshold: cfg.BreakerOptions.FailureThreshold,
			OpenDuration:     durationMillis(cfg.BreakerOptions.OpenDuration),
			HalfOpenMaxCalls: cfg.BreakerOptions.HalfOpenMaxCalls,
		},
		CacheSyncInterval: durationMillis(cfg.CacheSyncInterval),
		HealthInterval:    durationMillis(cfg.HealthInterval),
		TraceSampleRate:   cfg.TraceSampleRate,
		HTTPReadTimeout:   durationMillis(cfg.HTTPReadTimeout),
		HTTPWriteTimeout:  durationMillis(cfg.HTTPWriteTimeout),
		HTTPIdleTimeout:   durationMillis(cfg.HTTPIdleTimeout),
		RequestTimeout:    durationMillis(cfg.RequestTimeout),
		DrainTimeout:      durationMillis(cfg.DrainTimeout),
		MaxBodyBytes:      cfg.MaxBodyBytes,
		EnableAuth:        cfg.EnableAuth,
		Tiers:             cfg.Tiers,
	}
}
