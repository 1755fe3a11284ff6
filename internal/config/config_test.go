package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
host: chat.example.net
port: 6000
account: bot
password: hunter2
home_channel: Den
reconnect_delay: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PCHAT_PORT", "7000")

	logger := zerolog.Nop()
	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("unexpected path %q", resolved)
	}
	if cfg.Host != "chat.example.net" || cfg.Account != "bot" || cfg.HomeChannel != "Den" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Port != 7000 {
		t.Fatalf("env should override file port, got %d", cfg.Port)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("unexpected reconnect delay %v", cfg.ReconnectDelay)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.BatchDelay != 500*time.Millisecond {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ReconnectDelay != Default().ReconnectDelay {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "home_channel: Lobby") {
		t.Fatalf("unexpected default file:\n%s", data)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Account = "bot"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := Default()
	bad.Port = 70000
	bad.HTTPAddr = ":8080"
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"account is required", "port 70000 out of range", "jwt_secret is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestUpdateFromKeepsZeroFields(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Host: "other", Port: 1234})
	if cfg.Host != "other" || cfg.Port != 1234 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.HomeChannel != "Lobby" || cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("zero fields must not clear values: %+v", cfg)
	}
	if cfg.Address() != "other:1234" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}
