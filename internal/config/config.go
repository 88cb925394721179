// Package config loads service configuration from yaml and environment.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config defines the metering service configuration. A DatabaseURL is
// optional; without one the account registry runs in memory.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	DatabaseURL string `yaml:"database_url"`
	ArchiveDir  string `yaml:"archive_dir"`
	BillDir     string `yaml:"bill_dir"`
	LogDir      string `yaml:"log_dir"`
}

// Load builds the configuration from defaults, then an optional yaml
// file named by METERING_CONFIG, then environment overrides.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:   ":8080",
		ArchiveDir: filepath.FromSlash("var/archive"),
		BillDir:    filepath.FromSlash("var/bills"),
		LogDir:     filepath.FromSlash("var/logs"),
	}

	if path := os.Getenv("METERING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.ArchiveDir = getenvDefault("ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.BillDir = getenvDefault("BILL_DIR", cfg.BillDir)
	cfg.LogDir = getenvDefault("LOG_DIR", cfg.LogDir)

	if cfg.ArchiveDir == "" {
		return cfg, errors.New("config: archive dir required")
	}
	if cfg.BillDir == "" {
		return cfg, errors.New("config: bill dir required")
	}
	if cfg.LogDir == "" {
		return cfg, errors.New("config: log dir required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
