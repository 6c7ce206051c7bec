// Package config provides YAML configuration loading, environment overrides,
// and validation for the sqew service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for sqew. Every field has
// a working default, so the service runs with no config file at all.
type Config struct {
	// DBPath is the SQLite database file path. Defaults to "./sqew.db".
	DBPath string `yaml:"db_path"`

	// BindAddr is the IP address the HTTP server binds to. Defaults to
	// "127.0.0.1"; overridden by the SQEW_BIND environment variable.
	BindAddr string `yaml:"bind_addr"`

	// Port is the HTTP listen port. Defaults to 8888.
	Port int `yaml:"port"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		DBPath:   "./sqew.db",
		BindAddr: "127.0.0.1",
		Port:     8888,
		LogLevel: "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides. A .env file
// in the working directory is folded into the environment first, so local
// development setups need no shell exports.
func Load(path string) (*Config, error) {
	// Missing .env files are the normal case outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv folds SQEW_* environment variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SQEW_BIND"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("SQEW_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SQEW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SQEW_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
}

// applyDefaults fills in zero-value fields with the defaults.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DBPath == "" {
		cfg.DBPath = def.DBPath
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = def.BindAddr
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
}

// validate checks enumerated and bounded fields.
func validate(cfg *Config) error {
	var errs []error
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	return errors.Join(errs...)
}
