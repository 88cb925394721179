package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("METERING_CONFIG", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("ARCHIVE_DIR", "")
	t.Setenv("BILL_DIR", "")
	t.Setenv("LOG_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("database url should default empty, got %q", cfg.DatabaseURL)
	}
	if cfg.ArchiveDir == "" || cfg.BillDir == "" || cfg.LogDir == "" {
		t.Fatalf("storage dirs must have defaults: %+v", cfg)
	}
}

func TestLoad_YamlAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "http_addr: \":9090\"\narchive_dir: /data/archive\nbill_dir: /data/bills\nlog_dir: /data/logs\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("METERING_CONFIG", path)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "postgres://localhost/meters")
	t.Setenv("ARCHIVE_DIR", "")
	t.Setenv("BILL_DIR", "")
	t.Setenv("LOG_DIR", "/override/logs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("http addr = %q, want :9090 from yaml", cfg.HTTPAddr)
	}
	if cfg.ArchiveDir != "/data/archive" {
		t.Fatalf("archive dir = %q", cfg.ArchiveDir)
	}
	if cfg.LogDir != "/override/logs" {
		t.Fatalf("log dir = %q, env must win over yaml", cfg.LogDir)
	}
	if cfg.DatabaseURL != "postgres://localhost/meters" {
		t.Fatalf("database url = %q, PG_DSN must apply", cfg.DatabaseURL)
	}
}
