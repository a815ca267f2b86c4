package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.NATS.Port != 4222 {
		t.Errorf("expected nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.NATS.MaxPayload != 8<<20 {
		t.Errorf("expected nats max payload 8MiB, got %d", cfg.NATS.MaxPayload)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected web port 8080, got %d", cfg.Web.Port)
	}
	if !cfg.Web.Enabled {
		t.Error("expected web enabled by default")
	}
	if cfg.Store.Path != "data/hive.db" {
		t.Errorf("expected store path data/hive.db, got %s", cfg.Store.Path)
	}
	if cfg.Swarm.ApprovalTimeout != 10*time.Second {
		t.Errorf("expected approval timeout 10s, got %v", cfg.Swarm.ApprovalTimeout)
	}
	if cfg.Swarm.DefaultVisibility != "restricted" {
		t.Errorf("expected restricted visibility, got %s", cfg.Swarm.DefaultVisibility)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	// Point config to a non-existent file so we use defaults
	t.Setenv("HIVE_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("HIVE_VAULT_PASSPHRASE", "secret")
	t.Setenv("HIVE_WEB_PORT", "9090")
	t.Setenv("HIVE_LOG_LEVEL", "debug")
	t.Setenv("HIVE_TRACING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Vault.Passphrase != "secret" {
		t.Errorf("expected passphrase secret, got %s", cfg.Vault.Passphrase)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected tracing enabled")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hive.yaml")

	t.Setenv("HIVE_TEST_PASS", "from-env")
	yaml := `
vault:
  passphrase: "${HIVE_TEST_PASS}"
web:
  port: 3000
  enabled: false
scheduler:
  poll_interval: 2s
swarm:
  approval_timeout: 3s
  deny_sensitivity: [CREDENTIAL, PHI]
  default_visibility: private
log:
  format: json
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HIVE_CONFIG", cfgPath)
	t.Setenv("HIVE_VAULT_PASSPHRASE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Vault.Passphrase != "from-env" {
		t.Errorf("expected expanded passphrase, got %s", cfg.Vault.Passphrase)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("expected web port 3000, got %d", cfg.Web.Port)
	}
	if cfg.Web.Enabled {
		t.Error("expected web disabled")
	}
	if cfg.Scheduler.PollInterval != 2*time.Second {
		t.Errorf("expected poll interval 2s, got %v", cfg.Scheduler.PollInterval)
	}
	if len(cfg.Swarm.DenySensitivity) != 2 {
		t.Errorf("expected 2 deny entries, got %v", cfg.Swarm.DenySensitivity)
	}
	if cfg.Swarm.DefaultVisibility != "private" {
		t.Errorf("expected private visibility, got %s", cfg.Swarm.DefaultVisibility)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Log.Format)
	}
	// untouched sections keep defaults
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected default nats port, got %d", cfg.NATS.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hive.yaml")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HIVE_LOG_LEVEL", "")

	if _, err := LoadFile(cfgPath); err == nil {
		t.Fatal("expected error for invalid log level")
	}

	if err := os.WriteFile(cfgPath, []byte("swarm:\n  default_visibility: hidden\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(cfgPath); err == nil {
		t.Fatal("expected error for invalid visibility")
	}

	if err := os.WriteFile(cfgPath, []byte("nats:\n  max_payload: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(cfgPath); err == nil {
		t.Fatal("expected error for negative max payload")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hive.yaml")
	if err := os.WriteFile(cfgPath, []byte("web: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(cfgPath); err == nil {
		t.Fatal("expected parse error")
	}
}
