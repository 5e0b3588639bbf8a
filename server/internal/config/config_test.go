package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `server: {}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Storage.Driver != DefaultStorageDriver {
		t.Errorf("storage.driver: got %q, want %q", cfg.Server.Storage.Driver, DefaultStorageDriver)
	}
	if cfg.Server.Evaluation.Window != DefaultEvaluationWindow {
		t.Errorf("evaluation.window: got %v, want %v", cfg.Server.Evaluation.Window, DefaultEvaluationWindow)
	}
	if cfg.Server.Evaluation.Interval != DefaultEvaluationInterval {
		t.Errorf("evaluation.interval: got %v, want %v", cfg.Server.Evaluation.Interval, DefaultEvaluationInterval)
	}
	if cfg.Server.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level: got %v, want info", cfg.Server.Log.SlogLevel())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-brandlens-key
  storage:
    driver: memory
  evaluation:
    window: 1h
    interval: 0s
  alerts:
    webhooks:
      - type: slack
        url_env: SLACK_URL
      - type: teams
        url_env: TEAMS_URL
  log:
    level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if cfg.Server.Auth.EffectiveHeader() != "x-brandlens-key" {
		t.Errorf("header: got %q, want x-brandlens-key", cfg.Server.Auth.EffectiveHeader())
	}
	if cfg.Server.Storage.Driver != "memory" {
		t.Errorf("storage.driver: got %q, want memory", cfg.Server.Storage.Driver)
	}
	if cfg.Server.Evaluation.Window != time.Hour {
		t.Errorf("evaluation.window: got %v, want 1h", cfg.Server.Evaluation.Window)
	}
	if cfg.Server.Evaluation.Interval != 0 {
		t.Errorf("evaluation.interval: got %v, want 0", cfg.Server.Evaluation.Interval)
	}
	if n := len(cfg.Server.Alerts.Webhooks); n != 2 {
		t.Fatalf("webhooks: got %d, want 2", n)
	}
	if cfg.Server.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", cfg.Server.Log.SlogLevel())
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{Type: "http"}).URL(); got != "" {
		t.Errorf("URL() without url_env: got %q, want empty", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"unknown driver", "server:\n  storage:\n    driver: postgres\n"},
		{"sqlite without path", "server:\n  storage:\n    driver: sqlite\n    path: \"\"\n"},
		{"zero window", "server:\n  evaluation:\n    window: 0s\n"},
		{"negative interval", "server:\n  evaluation:\n    interval: -1m\n"},
		{"unknown webhook type", "server:\n  alerts:\n    webhooks:\n      - type: email\n        url_env: X\n"},
		{"webhook without url_env", "server:\n  alerts:\n    webhooks:\n      - type: slack\n"},
		{"unknown log level", "server:\n  log:\n    level: trace\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  log:\n    level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-reloaded:
			if c.Server.Log.Level != "debug" {
				t.Errorf("reloaded level: got %q, want debug", c.Server.Log.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(p, []byte("server:\n  log:\n    level: debug\n"), 0o600); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
