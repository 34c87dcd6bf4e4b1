package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by the client.
const EnvPrefix = "PANTRY_"

// parseEnv overlays cfg with PANTRY_* variables. lookup is os.LookupEnv in
// production.
func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	strs := map[string]*string{
		"BASE_URL":             &cfg.BaseURL,
		"CACHE_SWEEP_SCHEDULE": &cfg.CacheSweepSchedule,
		"DATABASE_PATH":        &cfg.DatabasePath,
		"KEY_FILE":             &cfg.KeyFile,
		"DEVICE_SECRET":        &cfg.DeviceSecret,
		"LOG_BACKEND":          &cfg.LogBackend,
		"LOG_LEVEL":            &cfg.LogLevel,
		"LOG_FORMAT":           &cfg.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT":        &cfg.RequestTimeout,
		"LONG_REQUEST_TIMEOUT":   &cfg.LongRequestTimeout,
		"CREDENTIAL_TTL":         &cfg.CredentialTTL,
		"CACHE_TTL":              &cfg.CacheTTL,
		"NEAR_EXPIRY_GRACE":      &cfg.NearExpiryGrace,
		"SESSION_CHECK_INTERVAL": &cfg.SessionCheckInterval,
	}
	for name, dst := range durations {
		v, ok := get(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := get("ALLOWED_HOSTS"); ok {
		cfg.AllowedHosts = splitList(v)
	}
	if v, ok := get("STRICT_SECURITY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTRICT_SECURITY: %w", EnvPrefix, err)
		}
		cfg.StrictSecurity = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
