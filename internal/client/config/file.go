package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape. Durations go through timex.Duration so
// they may be written as "90s" or as integer nanoseconds. Absent members keep
// the value they had before the file was read.
type fileConfig struct {
	BaseURL              string         `json:"base_url" yaml:"base_url"`
	AllowedHosts         []string       `json:"allowed_hosts" yaml:"allowed_hosts"`
	StrictSecurity       *bool          `json:"strict_security" yaml:"strict_security"`
	RequestTimeout       timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LongRequestTimeout   timex.Duration `json:"long_request_timeout" yaml:"long_request_timeout"`
	CredentialTTL        timex.Duration `json:"credential_ttl" yaml:"credential_ttl"`
	CacheTTL             timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	NearExpiryGrace      timex.Duration `json:"near_expiry_grace" yaml:"near_expiry_grace"`
	SessionCheckInterval timex.Duration `json:"session_check_interval" yaml:"session_check_interval"`
	CacheSweepSchedule   string         `json:"cache_sweep_schedule" yaml:"cache_sweep_schedule"`
	DatabasePath         string         `json:"database_path" yaml:"database_path"`
	KeyFile              string         `json:"key_file" yaml:"key_file"`
	DeviceSecret         string         `json:"device_secret" yaml:"device_secret"`
	LogBackend           string         `json:"log_backend" yaml:"log_backend"`
	LogLevel             string         `json:"log_level" yaml:"log_level"`
	LogFormat            string         `json:"log_format" yaml:"log_format"`
}

// parseFile overlays cfg with the JSON or YAML file at path. The format is
// chosen by extension; anything other than .yaml/.yml is read as JSON.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.BaseURL, fc.BaseURL)
	if fc.AllowedHosts != nil {
		cfg.AllowedHosts = fc.AllowedHosts
	}
	if fc.StrictSecurity != nil {
		cfg.StrictSecurity = *fc.StrictSecurity
	}
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setDuration(&cfg.LongRequestTimeout, fc.LongRequestTimeout)
	setDuration(&cfg.CredentialTTL, fc.CredentialTTL)
	setDuration(&cfg.CacheTTL, fc.CacheTTL)
	setDuration(&cfg.NearExpiryGrace, fc.NearExpiryGrace)
	setDuration(&cfg.SessionCheckInterval, fc.SessionCheckInterval)
	setString(&cfg.CacheSweepSchedule, fc.CacheSweepSchedule)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.KeyFile, fc.KeyFile)
	setString(&cfg.DeviceSecret, fc.DeviceSecret)
	setString(&cfg.LogBackend, fc.LogBackend)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
