package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: debug
  console: true
alerts:
  sweep_interval: "30s"
jobs:
  default_interval: "5m"
notify:
  rate_per_sec: 10
charts:
  enabled: true
storage:
  driver: sqlite
  path: ./data/bot.db
`

func TestParseValid(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Alerts.SweepInterval != "30s" {
		t.Fatalf("sweep_interval = %q", cfg.Alerts.SweepInterval)
	}
	if !cfg.Charts.Enabled {
		t.Fatal("charts.enabled should be true")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validYAML, "rate_per_sec", "rate_per_secund", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRequiresToken(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validYAML, `token: "123:abc"`, `token: ""`, 1)
	if _, err := Parse([]byte(bad)); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("err = %v, want telegram.token error", err)
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validYAML, `sweep_interval: "30s"`, `sweep_interval: "half an hour"`, 1)
	if _, err := Parse([]byte(bad)); err == nil || !strings.Contains(err.Error(), "alerts.sweep_interval") {
		t.Fatalf("err = %v, want alerts.sweep_interval error", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty means zero", raw: "", want: 0},
		{name: "simple", raw: "45s", want: 45 * time.Second},
		{name: "compound", raw: "2h30m", want: 2*time.Hour + 30*time.Minute},
		{name: "negative rejected", raw: "-5s", wantErr: true},
		{name: "garbage rejected", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("x", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("x", "", time.Minute)
	if err != nil || got != time.Minute {
		t.Fatalf("got %v, %v; want 1m, nil", got, err)
	}
	got, err = ParseDurationOrDefault("x", "10s", time.Minute)
	if err != nil || got != 10*time.Second {
		t.Fatalf("got %v, %v; want 10s, nil", got, err)
	}
}
