// Package config provides configuration for the application wiring.
package config

import (
	"time"

	"tierlimit/internal/tierlimit"
	"tierlimit/internal/tierlimit/observability"
)

// Store backends selectable at startup.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// Limiter algorithms selectable at startup.
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

// TierLimits configures one tier's default policy.
type TierLimits struct {
	BaseLimit  int64
	BurstLimit int64
	WindowMS   int64
}

// RedisConfig carries connection settings for the Redis state store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	KeyPrefix    string
}

// Config captures dependency and runtime settings.
type Config struct {
	HTTPListenAddr    string
	EnableHTTP        bool
	StoreBackend      string
	Algorithm         string
	Redis             RedisConfig
	SQLitePath        string
	StateGrace        time.Duration
	ShardCount        int
	MaxKeysPerShard   int
	SweepInterval     time.Duration
	BreakerOptions    tierlimit.CircuitOptions
	CacheSyncInterval time.Duration
	HealthInterval    time.Duration
	TraceSampleRate   int
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RequestTimeout    time.Duration
	DrainTimeout      time.Duration
	MaxBodyBytes      int64
	EnableAuth        bool
	AdminToken        string
	Tiers             map[string]TierLimits
	Tracer            observability.Tracer
	Sampler           observability.Sampler
	Metrics           observability.Metrics
	Logger            observability.Logger
}
