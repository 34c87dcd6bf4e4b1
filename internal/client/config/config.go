package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/flagx"
)

// Config holds the client settings. It is read once at startup.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.pantry.app/v1.
	BaseURL string
	// AllowedHosts extends the host allow-list beyond BaseURL's own host.
	AllowedHosts []string
	// StrictSecurity disables dev mode even against a local plain-HTTP backend.
	StrictSecurity bool

	RequestTimeout       time.Duration
	LongRequestTimeout   time.Duration
	CredentialTTL        time.Duration
	CacheTTL             time.Duration
	NearExpiryGrace      time.Duration
	SessionCheckInterval time.Duration
	CacheSweepSchedule   string

	DatabasePath string
	// KeyFile holds the credential sealing key when no DeviceSecret is set.
	KeyFile      string
	DeviceSecret string

	LogBackend string
	LogLevel   string
	LogFormat  string
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	dir := defaultDataDir()

	c.BaseURL = "http://localhost:8080"
	c.AllowedHosts = nil
	c.StrictSecurity = false
	c.RequestTimeout = 60 * time.Second
	c.LongRequestTimeout = 90 * time.Second
	c.CredentialTTL = 24 * time.Hour
	c.CacheTTL = 5 * time.Minute
	c.NearExpiryGrace = 5 * time.Minute
	c.SessionCheckInterval = 5 * time.Minute
	c.CacheSweepSchedule = "@every 10m"
	c.DatabasePath = filepath.Join(dir, "pantry.db")
	c.KeyFile = filepath.Join(dir, "credential.key")
	c.DeviceSecret = ""
	c.LogBackend = "slog"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config from defaults, then the config file named by
// -c/--config in args, then PANTRY_* environment variables. Command-line
// flags are applied afterwards through BindFlags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path := flagx.ConfigFileFlag(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base url %q: missing host", c.BaseURL)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"request timeout", c.RequestTimeout},
		{"long request timeout", c.LongRequestTimeout},
		{"credential ttl", c.CredentialTTL},
		{"cache ttl", c.CacheTTL},
		{"near expiry grace", c.NearExpiryGrace},
		{"session check interval", c.SessionCheckInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}

	if c.DatabasePath == "" {
		return errors.New("database path must not be empty")
	}
	if c.DeviceSecret == "" && c.KeyFile == "" {
		return errors.New("either a device secret or a key file is required")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pantry")
	}
	return ".pantry"
}
