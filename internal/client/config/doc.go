// Package config loads runtime configuration for the pantry client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or --config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. PANTRY_* environment variables (PANTRY_BASE_URL, PANTRY_CACHE_TTL, ...).
//  4. Command-line flags registered with BindFlags.
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "90s" or
// integer nanoseconds:
//
//	{
//	  "base_url": "https://api.pantry.app/v1",
//	  "allowed_hosts": ["cdn.pantry.app"],
//	  "request_timeout": "60s",
//	  "cache_ttl": "5m",
//	  "log_backend": "zap"
//	}
//
// The device secret is never exposed as a flag; set it in the file or with
// PANTRY_DEVICE_SECRET.
package config
