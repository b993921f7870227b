package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	yaml := `
listen: ":9191"
container:
  id: worker-1
  flow_name: invoices
  required_env: [DATABASE_URL]
restart:
  policy: always
  max_attempts: 3
databases:
  - name: rpa_db
    dsn: postgres://localhost/rpa
services:
  - name: ledger
    health_endpoint: http://ledger:8080/health
    required: true
server:
  url: http://prefect:4200/api
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9191" {
		t.Errorf("listen = %q, want %q", cfg.Listen, ":9191")
	}
	if cfg.Container.ID != "worker-1" || cfg.Container.FlowName != "invoices" {
		t.Errorf("container = %+v", cfg.Container)
	}
	if cfg.Restart.Policy != "always" || *cfg.Restart.MaxAttempts != 3 {
		t.Errorf("restart = %+v", cfg.Restart)
	}
	if len(cfg.Databases) != 1 || cfg.Databases[0].Type != "postgres" {
		t.Fatalf("databases = %+v", cfg.Databases)
	}
	if !cfg.Databases[0].IsRequired() {
		t.Error("databases should default to required")
	}
	if cfg.Server.HealthEndpoint() != "http://prefect:4200/api/health" {
		t.Errorf("server health endpoint = %q", cfg.Server.HealthEndpoint())
	}
}

func TestDefaultsApplied(t *testing.T) {
	path := writeTemp(t, "container:\n  id: c1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("default listen = %q", cfg.Listen)
	}
	if cfg.Health.CheckInterval != 30*time.Second {
		t.Errorf("check_interval = %v, want 30s", cfg.Health.CheckInterval)
	}
	if cfg.Health.MaxFailures != 3 {
		t.Errorf("max_failures = %d, want 3", cfg.Health.MaxFailures)
	}
	if cfg.Health.CacheTTL != 30*time.Second {
		t.Errorf("cache_ttl = %v, want 30s", cfg.Health.CacheTTL)
	}
	if cfg.Health.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %v, want 2s", cfg.Health.PollInterval)
	}
	if cfg.Restart.Policy != "on-failure" {
		t.Errorf("restart policy = %q", cfg.Restart.Policy)
	}
	if cfg.Restart.ExponentialBackoff == nil || !*cfg.Restart.ExponentialBackoff {
		t.Error("exponential backoff should default to on")
	}
	if cfg.Restart.MaxAttempts == nil || *cfg.Restart.MaxAttempts != DefaultMaxRestartAttempts {
		t.Errorf("max_attempts = %v, want %d", cfg.Restart.MaxAttempts, DefaultMaxRestartAttempts)
	}
	if cfg.Restart.Window != time.Hour {
		t.Errorf("restart window = %v", cfg.Restart.Window)
	}
	if cfg.Shutdown.Timeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Shutdown.Timeout)
	}
}

func TestExponentialBackoffCanBeDisabled(t *testing.T) {
	path := writeTemp(t, "restart:\n  exponential_backoff: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *cfg.Restart.ExponentialBackoff {
		t.Error("expected exponential backoff disabled")
	}
}

func TestZeroMaxAttemptsKept(t *testing.T) {
	path := writeTemp(t, "restart:\n  policy: always\n  max_attempts: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Restart.MaxAttempts == nil || *cfg.Restart.MaxAttempts != 0 {
		t.Errorf("max_attempts = %v, want explicit 0", cfg.Restart.MaxAttempts)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("LG_TEST_DSN", "postgres://u:p@db/app")
	path := writeTemp(t, `
databases:
  - name: app
    dsn: ${LG_TEST_DSN}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Databases[0].DSN != "postgres://u:p@db/app" {
		t.Errorf("dsn = %q", cfg.Databases[0].DSN)
	}
}

func TestServiceDefaults(t *testing.T) {
	path := writeTemp(t, `
services:
  - name: api
    health_endpoint: http://api/health
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	svc := cfg.Services[0]
	if svc.Timeout != 10*time.Second || svc.RetryAttempts != 3 || svc.Required {
		t.Errorf("service defaults = %+v", svc)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
