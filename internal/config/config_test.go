//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		t.Setenv("WEBAPP_URL", "")
		path := writeConfig(t, "bot:\n  token: abc\n")

		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Workers != 4 {
			t.Errorf("expected 4 workers, got %d", cfg.Bot.Workers)
		}
		if cfg.Directory.Path != "sellers.json" {
			t.Errorf("unexpected roster path %q", cfg.Directory.Path)
		}
		if len(cfg.Dialogue.Brands) != 4 {
			t.Errorf("expected default brand menu, got %v", cfg.Dialogue.Brands)
		}
		if cfg.Requests.TTL != 24*time.Hour {
			t.Errorf("unexpected request ttl %v", cfg.Requests.TTL)
		}
		if !cfg.RestrictResponders() {
			t.Error("responder restriction should default to on")
		}
		if cfg.Router.Currency != "AED" {
			t.Errorf("unexpected currency %q", cfg.Router.Currency)
		}
		if !cfg.Runtime.Dev {
			t.Error("dev flag not propagated")
		}
	})

	t.Run("should let environment override token and webapp url", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "from-env")
		t.Setenv("WEBAPP_URL", "https://parts.example/app")
		path := writeConfig(t, "bot:\n  token: from-file\n  webapp_url: https://old.example\n")

		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Token != "from-env" {
			t.Errorf("token = %q", cfg.Bot.Token)
		}
		if cfg.Bot.WebAppURL != "https://parts.example/app" {
			t.Errorf("webapp url = %q", cfg.Bot.WebAppURL)
		}
	})

	t.Run("should work without a config file", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "only-env")
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Token != "only-env" {
			t.Errorf("token = %q", cfg.Bot.Token)
		}
	})

	t.Run("should reject missing token", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		path := writeConfig(t, "log:\n  level: debug\n")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error for missing token")
		}
	})

	t.Run("should require redis url for redis backend", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		path := writeConfig(t, "bot:\n  token: abc\nrequests:\n  backend: redis\n")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error for redis backend without url")
		}
	})

	t.Run("should keep explicit responder setting", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		path := writeConfig(t, "bot:\n  token: abc\nrequests:\n  restrict_responders: false\n  ttl: 2h\n")
		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.RestrictResponders() {
			t.Error("expected restriction to be disabled")
		}
		if cfg.Requests.TTL != 2*time.Hour {
			t.Errorf("ttl = %v", cfg.Requests.TTL)
		}
	})
}
