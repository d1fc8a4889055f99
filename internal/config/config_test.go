package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CROWDOCS_DB_NAME", "crowdocs")
	t.Setenv("CROWDOCS_DB_USER", "crowdocs")
	t.Setenv("CROWDOCS_STORAGE_CONTAINER_NAME", "outputs")
	t.Setenv("CROWDOCS_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("CROWDOCS_CROWD_BASE_URL", "https://crowd.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ShutdownTimeout != "30s" {
		t.Errorf("shutdown timeout = %q, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown duration = %v", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Engine.PageSize <= 0 || cfg.Engine.Workers <= 0 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Pagination.DefaultPageSize <= 0 {
		t.Errorf("pagination defaults = %+v", cfg.Pagination)
	}
}

func TestLoadOverlayPrecedence(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CROWDOCS_ENV", "staging")

	base := `
shutdown_timeout = "10s"
version = "1.2.3"

[engine]
page_size = 25
workers = 2
`
	overlay := `
shutdown_timeout = "45s"

[engine]
workers = 8
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(base), 0o644); err != nil {
		t.Fatalf("write base config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.staging.toml"), []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ShutdownTimeout != "45s" {
		t.Errorf("shutdown timeout = %q, want overlay 45s", cfg.ShutdownTimeout)
	}
	if cfg.Version != "1.2.3" {
		t.Errorf("version = %q, want base 1.2.3", cfg.Version)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("workers = %d, want overlay 8", cfg.Engine.Workers)
	}
	if cfg.Engine.PageSize != 25 {
		t.Errorf("page size = %d, want base 25", cfg.Engine.PageSize)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CROWDOCS_SHUTDOWN_TIMEOUT", "90s")
	t.Setenv("CROWDOCS_ENGINE_WORKERS", "16")

	base := `
shutdown_timeout = "10s"

[engine]
workers = 2
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(base), 0o644); err != nil {
		t.Fatalf("write base config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ShutdownTimeout != "90s" {
		t.Errorf("shutdown timeout = %q, want env 90s", cfg.ShutdownTimeout)
	}
	if cfg.Engine.Workers != 16 {
		t.Errorf("workers = %d, want env 16", cfg.Engine.Workers)
	}
}

func TestLoadInvalidShutdownTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("CROWDOCS_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted invalid shutdown_timeout")
	}
}
