package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLoader(t *testing.T, env map[string]string) *Loader {
	t.Helper()
	l, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	l.getenv = func(k string) string { return env[k] }
	return l
}

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	l := newTestLoader(t, nil)

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.CheckpointRetention != DefaultCheckpointRetention {
		t.Errorf("expected default retention, got %d", cfg.Sync.CheckpointRetention)
	}
}

func TestLoader_ParsesYAML(t *testing.T) {
	l := newTestLoader(t, nil)

	content := `
data:
  directory: /srv/inventory
remote:
  base_url: https://records.example.com
  timeout: 5s
  collections:
    laptops:
      name: hardware
      fields:
        serial_number: serial
sync:
  checkpoint_retention: 3
  push_concurrency: 8
entities:
  tools: true
`
	path := filepath.Join(l.ConfigDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Data.Directory != "/srv/inventory" {
		t.Errorf("directory = %q", cfg.Data.Directory)
	}
	if cfg.Data.Database != DefaultDatabase {
		t.Errorf("unset database should keep default, got %q", cfg.Data.Database)
	}
	if cfg.Remote.Timeout.Seconds() != 5 {
		t.Errorf("timeout = %v", cfg.Remote.Timeout)
	}
	if cfg.Remote.Collections["laptops"].Fields["serial_number"] != "serial" {
		t.Errorf("field mapping not parsed: %+v", cfg.Remote.Collections)
	}
	if cfg.Sync.CheckpointRetention != 3 || cfg.Sync.PushConcurrency != 8 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if !cfg.Entities.Tools {
		t.Error("tools should be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		EnvRemoteURL: "https://override.example.com",
		EnvAPIToken:  "secret-token",
		EnvDataDir:   "/tmp/inv",
		EnvLogLevel:  "DEBUG",
		EnvRetention: "2",
	})

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Remote.BaseURL != "https://override.example.com" {
		t.Errorf("base url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIToken != "secret-token" {
		t.Errorf("token = %q", cfg.Remote.APIToken)
	}
	if cfg.Data.Directory != "/tmp/inv" {
		t.Errorf("data dir = %q", cfg.Data.Directory)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Sync.CheckpointRetention != 2 {
		t.Errorf("retention = %d", cfg.Sync.CheckpointRetention)
	}
}

func TestLoader_InvalidRetentionEnv(t *testing.T) {
	l := newTestLoader(t, map[string]string{EnvRetention: "many"})
	if _, err := l.Load(""); err == nil {
		t.Error("expected error for non-numeric retention")
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	l := newTestLoader(t, nil)
	path := filepath.Join(l.ConfigDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoader_LoadFromFileMissing(t *testing.T) {
	l := newTestLoader(t, nil)
	if _, err := l.LoadFromFile(filepath.Join(l.ConfigDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoader_SaveOmitsToken(t *testing.T) {
	l := newTestLoader(t, nil)
	cfg := NewDefaultConfig()
	cfg.Remote.APIToken = "do-not-write"
	cfg.Remote.BaseURL = "https://records.example.com"

	if err := l.Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(l.DefaultConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Error("token written to config file")
	}
	if cfg.Remote.APIToken != "do-not-write" {
		t.Error("Save must not modify the caller's config")
	}

	reloaded, err := l.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Remote.BaseURL != "https://records.example.com" {
		t.Errorf("base url not round-tripped: %q", reloaded.Remote.BaseURL)
	}
}
