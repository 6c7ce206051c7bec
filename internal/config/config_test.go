package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SecretDeveloper/sqew/internal/config"
)

// writeFile writes a temp config file and returns its path.
func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqew.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "./sqew.db" {
		t.Errorf("DBPath = %q, want ./sqew.db", cfg.DBPath)
	}
	if cfg.BindAddr != "127.0.0.1" {
		t.Errorf("BindAddr = %q, want 127.0.0.1", cfg.BindAddr)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "db_path: /tmp/other.db\nport: 9999\nlog_level: debug\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q, want /tmp/other.db", cfg.DBPath)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "bind_addr: 10.0.0.1\n")
	t.Setenv("SQEW_BIND", "0.0.0.0")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0" {
		t.Errorf("BindAddr = %q, want SQEW_BIND override 0.0.0.0", cfg.BindAddr)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	if _, err := config.Load(writeFile(t, "log_level: loud\n")); err == nil {
		t.Error("Load accepted log_level loud")
	}
	if _, err := config.Load(writeFile(t, "port: 99999\n")); err == nil {
		t.Error("Load accepted out-of-range port")
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load accepted a missing explicit config file")
	}
}
