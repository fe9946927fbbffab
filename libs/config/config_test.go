package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "ledger-service" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %s", cfg.HTTP.ShutdownTimeout)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("app:\n  service_name: ledger-test\n  http:\n    port: 9000\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CTRADE_APP_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "ledger-test" || cfg.HTTP.Port != 9000 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("env override not applied: %q", cfg.LogLevel)
	}
}
