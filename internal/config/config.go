package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Logging  LoggingConfig  `yaml:"logging"`
	Prices   PricesConfig   `yaml:"prices"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Notify   NotifyConfig   `yaml:"notify"`
	Charts   ChartsConfig   `yaml:"charts"`
	Storage  StorageConfig  `yaml:"storage"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `yaml:"poll_timeout,omitempty"`

	// RequestTimeout bounds a single API call beyond the long-poll window.
	RequestTimeout string `yaml:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `yaml:"level,omitempty"`
	Console bool              `yaml:"console"`
	File    LoggingFileConfig `yaml:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

type PricesConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout bounds a single upstream call; CacheTTL bounds how long a spot
	// quote may be reused (one sweep should fetch each symbol once).
	Timeout  string `yaml:"timeout,omitempty"`
	CacheTTL string `yaml:"cache_ttl,omitempty"`
}

type AlertsConfig struct {
	// SweepInterval is the cadence of the alert evaluation cycle.
	SweepInterval string `yaml:"sweep_interval,omitempty"`

	// MaxPerOwner caps pending alerts per user (0 = default).
	MaxPerOwner int `yaml:"max_per_owner,omitempty"`
}

type JobsConfig struct {
	DefaultInterval string `yaml:"default_interval,omitempty"`
	MinInterval     string `yaml:"min_interval,omitempty"`
	DigestInterval  string `yaml:"digest_interval,omitempty"`

	// MaxPerOwner caps concurrently running jobs per user (0 = default).
	MaxPerOwner int `yaml:"max_per_owner,omitempty"`
}

type NotifyConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec,omitempty"`
	Burst      int     `yaml:"burst,omitempty"`

	// SendTimeout bounds one outbound delivery attempt.
	SendTimeout string `yaml:"send_timeout,omitempty"`
}

type ChartsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
}

type StorageConfig struct {
	// Driver is "sqlite" (file-backed) or "memory".
	Driver      string `yaml:"driver,omitempty"`
	Path        string `yaml:"path,omitempty"`
	BusyTimeout string `yaml:"busy_timeout,omitempty"`
}

// Load reads and strictly decodes the YAML config at path. Unknown fields are
// rejected so typos surface at startup instead of silently defaulting.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	fields := []struct {
		path string
		raw  string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"telegram.request_timeout", c.Telegram.RequestTimeout},
		{"notify.send_timeout", c.Notify.SendTimeout},
		{"prices.timeout", c.Prices.Timeout},
		{"prices.cache_ttl", c.Prices.CacheTTL},
		{"alerts.sweep_interval", c.Alerts.SweepInterval},
		{"jobs.default_interval", c.Jobs.DefaultInterval},
		{"jobs.min_interval", c.Jobs.MinInterval},
		{"jobs.digest_interval", c.Jobs.DigestInterval},
		{"charts.timeout", c.Charts.Timeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	}
	for _, f := range fields {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional string duration. Empty means zero
// (caller applies its default); negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
