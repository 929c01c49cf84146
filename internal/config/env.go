package config

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "CHAT_RELAY_"

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	values := envMap(environ)

	if value, ok := values[envPrefix+"PORT"]; ok {
		parsed, err := parseIntEnv(envPrefix+"PORT", value)
		if err != nil {
			return err
		}
		cfg.Server.Port = int(parsed)
	}
	if value, ok := values[envPrefix+"LOG_LEVEL"]; ok {
		cfg.Log.Level = strings.TrimSpace(value)
	}
	if value, ok := values[envPrefix+"LOG_FORMAT"]; ok {
		cfg.Log.Format = strings.TrimSpace(value)
	}
	if value, ok := values[envPrefix+"UPSTREAM_BASE_URL"]; ok {
		cfg.Upstream.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := values[envPrefix+"UPSTREAM_MODEL"]; ok {
		cfg.Upstream.Model = strings.TrimSpace(value)
	}
	if value, ok := values[envPrefix+"UPSTREAM_TIMEOUT_MS"]; ok {
		parsed, err := parseMillisEnv(envPrefix+"UPSTREAM_TIMEOUT_MS", value)
		if err != nil {
			return err
		}
		cfg.Upstream.Timeout = Duration(parsed)
	}
	if value, ok := values[envPrefix+"RATE_LIMIT_MAX"]; ok {
		parsed, err := parseIntEnv(envPrefix+"RATE_LIMIT_MAX", value)
		if err != nil {
			return err
		}
		cfg.RateLimit.MaxRequests = int(parsed)
	}
	if value, ok := values[envPrefix+"RATE_LIMIT_WINDOW_MS"]; ok {
		parsed, err := parseMillisEnv(envPrefix+"RATE_LIMIT_WINDOW_MS", value)
		if err != nil {
			return err
		}
		cfg.RateLimit.Window = Duration(parsed)
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = value
	}
	return values
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

const maxEnvMillis = math.MaxInt64 / int64(time.Millisecond)

// parseMillisEnv converts a millisecond count, rejecting values time.Duration cannot hold.
func parseMillisEnv(name, value string) (time.Duration, error) {
	parsed, err := parseIntEnv(name, value)
	if err != nil {
		return 0, err
	}
	if parsed > maxEnvMillis || parsed < -maxEnvMillis {
		return 0, errors.New("env value for " + name + " is out of range")
	}
	return time.Duration(parsed) * time.Millisecond, nil
}
