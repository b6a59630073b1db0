package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cryptotracker/pkg/logx"
)

func writeConfigFile(t *testing.T, path, token string) {
	t.Helper()
	body := strings.Replace(validYAML, `token: "123:abc"`, `token: "`+token+`"`, 1)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	got := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, logx.Nop(), func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()
	// Give the watcher time to register before the file is mutated.
	time.Sleep(150 * time.Millisecond)
	return got
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "123:abc")
	got := startWatch(t, path)

	writeConfigFile(t, path, "456:def")

	select {
	case cfg := <-got:
		if cfg.Telegram.Token != "456:def" {
			t.Fatalf("token = %q, want reloaded value", cfg.Telegram.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatchKeepsPreviousOnInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "123:abc")
	got := startWatch(t, path)

	if err := os.WriteFile(path, []byte("telegram: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-got:
		t.Fatalf("invalid config must not publish, got %+v", cfg)
	case <-time.After(700 * time.Millisecond):
	}
}
