package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers command-line flags on fs that write straight into cfg.
// The current values of cfg (defaults, file and environment already applied)
// become the flag defaults, so flags only override what is given explicitly.
//
// --config/-c is registered for help output only; LoadConfig has already
// consumed it.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringP("config", "c", "", "path to a JSON or YAML config file")

	fs.StringVarP(&cfg.BaseURL, "base-url", "a", cfg.BaseURL, "backend base URL")
	fs.StringSliceVar(&cfg.AllowedHosts, "allowed-host", cfg.AllowedHosts, "additional allowed host (repeatable)")
	fs.BoolVar(&cfg.StrictSecurity, "strict-security", cfg.StrictSecurity, "never relax transport checks, even for a local backend")

	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "default request deadline")
	fs.DurationVar(&cfg.LongRequestTimeout, "long-request-timeout", cfg.LongRequestTimeout, "deadline for generation endpoints")
	fs.DurationVar(&cfg.CredentialTTL, "credential-ttl", cfg.CredentialTTL, "credential lifetime when the backend gives none")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "default cache entry lifetime")
	fs.DurationVar(&cfg.NearExpiryGrace, "near-expiry-grace", cfg.NearExpiryGrace, "log out this long before the credential expires")
	fs.DurationVar(&cfg.SessionCheckInterval, "session-check-interval", cfg.SessionCheckInterval, "how often credential expiry is checked")
	fs.StringVar(&cfg.CacheSweepSchedule, "cache-sweep-schedule", cfg.CacheSweepSchedule, "cron schedule for removing expired cache entries")

	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the local SQLite database")
	fs.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "credential sealing key file")

	fs.StringVar(&cfg.LogBackend, "log-backend", cfg.LogBackend, "logging backend: slog or zap")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format for slog: text or json")
}
