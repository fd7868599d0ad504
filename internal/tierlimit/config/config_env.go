// Package config provides environment config overrides.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	values := envMap(environ)
	if value, ok := values["TIERLIMIT_HTTP_ADDR"]; ok {
		cfg.HTTPListenAddr = value
	}
	if value, ok := values["TIERLIMIT_ENABLE_HTTP"]; ok {
		parsed, err := parseBoolEnv("TIERLIMIT_ENABLE_HTTP", value)
		if err != nil {
			return err
		}
		cfg.EnableHTTP = parsed
	}
	if value, ok := values["TIERLIMIT_STORE_BACKEND"]; ok {
		cfg.StoreBackend = value
	}
	if value, ok := values["TIERLIMIT_ALGORITHM"]; ok {
		cfg.Algorithm = value
	}
	if value, ok := values["TIERLIMIT_REDIS_ADDR"]; ok {
		cfg.Redis.Addr = value
	}
	if value, ok := values["TIERLIMIT_REDIS_PASSWORD"]; ok {
		cfg.Redis.Password = value
	}
	if value, ok := values["TIERLIMIT_REDIS_DB"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_REDIS_DB", value)
		if err != nil {
			return err
		}
		cfg.Redis.DB = int(parsed)
	}
	if value, ok := values["TIERLIMIT_REDIS_KEY_PREFIX"]; ok {
		cfg.Redis.KeyPrefix = value
	}
	if value, ok := values["TIERLIMIT_SQLITE_PATH"]; ok {
		cfg.SQLitePath = value
	}
	if value, ok := values["TIERLIMIT_STATE_GRACE_MS"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_STATE_GRACE_MS", value)
		if err != nil {
			return err
		}
		cfg.StateGrace = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["TIERLIMIT_BREAKER_FAILURE_THRESHOLD"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_BREAKER_FAILURE_THRESHOLD", value)
		if err != nil {
			return err
		}
		cfg.BreakerOptions.FailureThreshold = parsed
	}
	if value, ok := values["TIERLIMIT_BREAKER_OPEN_MS"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_BREAKER_OPEN_MS", value)
		if err != nil {
			return err
		}
		cfg.BreakerOptions.OpenDuration = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["TIERLIMIT_CACHE_SYNC_MS"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_CACHE_SYNC_MS", value)
		if err != nil {
			return err
		}
		cfg.CacheSyncInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["TIERLIMIT_HEALTH_INTERVAL_MS"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_HEALTH_INTERVAL_MS", value)
		if err != nil {
			return err
		}
		cfg.HealthInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["TIERLIMIT_TRACE_SAMPLE_RATE"]; ok {
		parsed, err := parseIntEnv("TIERLIMIT_TRACE_SAMPLE_RATE", value)
		if err != nil {
			return err
		}
		cfg.TraceSampleRate = int(parsed)
	}
	if value, ok := values["TIERLIMIT_ENABLE_AUTH"]; ok {
		parsed, err := parseBoolEnv("TIERLIMIT_ENABLE_AUTH", value)
		if err != nil {
			return err
		}
		cfg.EnableAuth = parsed
	}
	if value, ok := values["TIERLIMIT_ADMIN_TOKEN"]; ok {
		cfg.AdminToken = value
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}
