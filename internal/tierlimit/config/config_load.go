// Package config provides configuration loading.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tierlimit/internal/tierlimit"
)

// LoadOptions controls config loading.
type LoadOptions struct {
	ConfigPath string
	Environ    []string
}

// Load builds configuration from defaults, an optional YAML file, and
// environment overrides, in that order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	cfg := Default()
	if opts.ConfigPath != "" {
		overrides, err := loadConfigFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		applyFileOverrides(cfg, overrides)
	}
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		HTTPListenAddr:  ":8080",
		EnableHTTP:      true,
		StoreBackend:    StoreBackendMemory,
		Algorithm:       AlgorithmFixedWindow,
		StateGrace:      10 * time.Minute,
		ShardCount:      64,
		MaxKeysPerShard: 8192,
		SweepInterval:   time.Minute,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			PoolSize:     32,
			KeyPrefix:    "tierlimit:state",
		},
		BreakerOptions: tierlimit.CircuitOptions{
			FailureThreshold: 10,
			OpenDuration:     200 * time.Millisecond,
			HalfOpenMaxCalls: 5,
		},
		CacheSyncInterval: 30 * time.Second,
		HealthInterval:    5 * time.Second,
		TraceSampleRate:   100,
		HTTPReadTimeout:   5 * time.Second,
		HTTPWriteTimeout:  10 * time.Second,
		HTTPIdleTimeout:   60 * time.Second,
		RequestTimeout:    2 * time.Second,
		DrainTimeout:      5 * time.Second,
		MaxBodyBytes:      1 << 20,
	}
}

// Validate rejects configurations the application cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	switch cfg.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return errors.New("invalid store backend: " + cfg.StoreBackend)
	}
	switch cfg.Algorithm {
	case AlgorithmFixedWindow, AlgorithmTokenBucket:
	default:
		return errors.New("invalid algorithm: " + cfg.Algorithm)
	}
	if cfg.StoreBackend == StoreBackendRedis && cfg.Redis.Addr == "" {
		return errors.New("redis addr is required for the redis backend")
	}
	if cfg.EnableAuth && cfg.AdminToken == "" {
		return errors.New("admin token is required when auth is enabled")
	}
	for name, limits := range cfg.Tiers {
		if name == "" {
			return errors.New("tier name must not be empty")
		}
		// Match the registry's rules so a bad tier fails here, named,
		// instead of later during wiring.
		if limits.BaseLimit <= 0 || limits.BurstLimit <= 0 || limits.WindowMS <= 0 {
			return errors.New("invalid limits for tier " + name)
		}
		if limits.BurstLimit > limits.BaseLimit {
			return errors.New("burst exceeds base for tier " + name)
		}
	}
	return nil
}

type fileOverrides struct {
	HTTPListenAddr    *string                  `yaml:"http_listen_addr"`
	EnableHTTP        *bool                    `yaml:"enable_http"`
	StoreBackend      *string                  `yaml:"store_backend"`
	Algorithm         *string                  `yaml:"algorithm"`
	Redis             *redisInput              `yaml:"redis"`
	SQLitePath        *string                  `yaml:"sqlite_path"`
	StateGraceMS      *int64                   `yaml:"state_grace_ms"`
	ShardCount        *int                     `yaml:"shard_count"`
	MaxKeysPerShard   *int                     `yaml:"max_keys_per_shard"`
	SweepIntervalMS   *int64                   `yaml:"sweep_interval_ms"`
	Breaker           *breakerInput            `yaml:"breaker"`
	CacheSyncMS       *int64                   `yaml:"cache_sync_ms"`
	HealthIntervalMS  *int64                   `yaml:"health_interval_ms"`
	TraceSampleRate   *int                     `yaml:"trace_sample_rate"`
	HTTPReadTimeoutMS *int64                   `yaml:"http_read_timeout_ms"`
	HTTPWriteTimeout  *int64                   `yaml:"http_write_timeout_ms"`
	HTTPIdleTimeout   *int64                   `yaml:"http_idle_timeout_ms"`
	RequestTimeoutMS  *int64                   `yaml:"request_timeout_ms"`
	DrainTimeoutMS    *int64                   `yaml:"drain_timeout_ms"`
	MaxBodyBytes      *int64                   `yaml:"max_body_bytes"`
	EnableAuth        *bool                    `yaml:"enable_auth"`
	AdminToken        *string                  `yaml:"admin_token"`
	Tiers             map[string]tierLimitsRaw `yaml:"tiers"`
}

type redisInput struct {
	Addr           *string `yaml:"addr"`
	Password       *string `yaml:"password"`
	DB             *int    `yaml:"db"`
	DialTimeoutMS  *int64  `yaml:"dial_timeout_ms"`
	ReadTimeoutMS  *int64  `yaml:"read_timeout_ms"`
	WriteTimeoutMS *int64  `yaml:"write_timeout_ms"`
	PoolSize       *int    `yaml:"pool_size"`
	KeyPrefix      *string `yaml:"key_prefix"`
}

type breakerInput struct {
	FailureThreshold *int64 `yaml:"failure_threshold"`
	OpenMS           *int64 `yaml:"open_ms"`
	HalfOpenMaxCalls *int64 `yaml:"half_open_max_calls"`
}

type tierLimitsRaw struct {
	BaseLimit  int64 `yaml:"base_limit"`
	BurstLimit int64 `yaml:"burst_limit"`
	WindowMS   int64 `yaml:"window_ms"`
}

func loadConfigFile(path string) (*fileOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

func applyFileOverrides(cfg *Config, overrides *fileOverrides) {
	if cfg == nil || overrides == nil {
		return
	}
	if overrides.HTTPListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.HTTPListenAddr
	}
	if overrides.EnableHTTP != nil {
		cfg.EnableHTTP = *overrides.EnableHTTP
	}
	if overrides.StoreBackend != nil {
		cfg.StoreBackend = *overrides.StoreBackend
	}
	if overrides.Algorithm != nil {
		cfg.Algorithm = *overrides.Algorithm
	}
	if overrides.Redis != nil {
		applyRedisOverrides(&cfg.Redis, overrides.Redis)
	}
	if overrides.SQLitePath != nil {
		cfg.SQLitePath = *overrides.SQLitePath
	}
	if overrides.StateGraceMS != nil {
		cfg.StateGrace = time.Duration(*overrides.StateGraceMS) * time.Millisecond
	}
	if overrides.ShardCount != nil {
		cfg.ShardCount = *overrides.ShardCount
	}
	if overrides.MaxKeysPerShard != nil {
		cfg.MaxKeysPerShard = *overrides.MaxKeysPerShard
	}
	if overrides.SweepIntervalMS != nil {
		cfg.SweepInterval = time.Duration(*overrides.SweepIntervalMS) * time.Millisecond
	}
	if overrides.Breaker != nil {
		if overrides.Breaker.FailureThreshold != nil {
			cfg.BreakerOptions.FailureThreshold = *overrides.Breaker.FailureThreshold
		}
		if overrides.Breaker.OpenMS != nil {
			cfg.BreakerOptions.OpenDuration = time.Duration(*overrides.Breaker.OpenMS) * time.Millisecond
		}
		if overrides.Breaker.HalfOpenMaxCalls != nil {
			cfg.BreakerOptions.HalfOpenMaxCalls = *overrides.Breaker.HalfOpenMaxCalls
		}
	}
	if overrides.CacheSyncMS != nil {
		cfg.CacheSyncInterval = time.Duration(*overrides.CacheSyncMS) * time.Millisecond
	}
	if overrides.HealthIntervalMS != nil {
		cfg.HealthInterval = time.Duration(*overrides.HealthIntervalMS) * time.Millisecond
	}
	if overrides.TraceSampleRate != nil {
		cfg.TraceSampleRate = *overrides.TraceSampleRate
	}
	if overrides.HTTPReadTimeoutMS != nil {
		cfg.HTTPReadTimeout = time.Duration(*overrides.HTTPReadTimeoutMS) * time.Millisecond
	}
	if overrides.HTTPWriteTimeout != nil {
		cfg.HTTPWriteTimeout = time.Duration(*overrides.HTTPWriteTimeout) * time.Millisecond
	}
	if overrides.HTTPIdleTimeout != nil {
		cfg.HTTPIdleTimeout = time.Duration(*overrides.HTTPIdleTimeout) * time.Millisecond
	}
	if overrides.RequestTimeoutMS != nil {
		cfg.RequestTimeout = time.Duration(*overrides.RequestTimeoutMS) * time.Millisecond
	}
	if overrides.DrainTimeoutMS != nil {
		cfg.DrainTimeout = time.Duration(*overrides.DrainTimeoutMS) * time.Millisecond
	}
	if overrides.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *overrides.MaxBodyBytes
	}
	if overrides.EnableAuth != nil {
		cfg.EnableAuth = *overrides.EnableAuth
	}
	if overrides.AdminToken != nil {
		cfg.AdminToken = *overrides.AdminToken
	}
	if len(overrides.Tiers) > 0 {
		if cfg.Tiers == nil {
			cfg.Tiers = make(map[string]TierLimits, len(overrides.Tiers))
		}
		for name, raw := range overrides.Tiers {
			cfg.Tiers[name] = TierLimits{
				BaseLimit:  raw.BaseLimit,
				BurstLimit: raw.BurstLimit,
				WindowMS:   raw.WindowMS,
			}
		}
	}
}

func applyRedisOverrides(cfg *RedisConfig, overrides *redisInput) {
	if cfg == nil || overrides == nil {
		return
	}
	if overrides.Addr != nil {
		cfg.Addr = *overrides.Addr
	}
	if overrides.Password != nil {
		cfg.Password = *overrides.Password
	}
	if overrides.DB != nil {
		cfg.DB = *overrides.DB
	}
	if overrides.DialTimeoutMS != nil {
		cfg.DialTimeout = time.Duration(*overrides.DialTimeoutMS) * time.Millisecond
	}
	if overrides.ReadTimeoutMS != nil {
		cfg.ReadTimeout = time.Duration(*overrides.ReadTimeoutMS) * time.Millisecond
	}
	if overrides.WriteTimeoutMS != nil {
		cfg.WriteTimeout = time.Duration(*overrides.WriteTimeoutMS) * time.Millisecond
	}
	if overrides.PoolSize != nil {
		cfg.PoolSize = *overrides.PoolSize
	}
	if overrides.KeyPrefix != nil {
		cfg.KeyPrefix = *overrides.KeyPrefix
	}
}
