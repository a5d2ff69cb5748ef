// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure of rpcgen.yaml.
type Config struct {
	Inputs  []string      `yaml:"inputs"` // globs, relative to the working directory
	Output  OutputConfig  `yaml:"output"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Watch   WatchConfig   `yaml:"watch"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// OutputConfig configures generated code.
type OutputConfig struct {
	Path    string `yaml:"path"`
	Package string `yaml:"package"`
	Layout  string `yaml:"layout"` // "flat" or "files"
}

// CacheConfig configures the build cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite file
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig configures the development rpc server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration from environment variables only.
//
// Environment variables:
//
//	RPCGEN_INPUTS          - Comma separated input globs
//	RPCGEN_OUTPUT_PATH     - Output directory (default: .)
//	RPCGEN_OUTPUT_PACKAGE  - Package clause of generated files (default: api)
//	RPCGEN_OUTPUT_LAYOUT   - flat or files (default: flat)
//	RPCGEN_CACHE_ENABLED   - Enable the build cache (default: false)
//	RPCGEN_CACHE_PATH      - Build cache file (default: .rpcgen-cache.db)
//	RPCGEN_LOG_LEVEL       - Log level: debug, info, warn, error (default: info)
//	RPCGEN_LOG_FORMAT      - Log format: json or console (default: console)
//	RPCGEN_WATCH_DEBOUNCE  - Quiet period before a watch rebuild (default: 200ms)
//	RPCGEN_SERVER_ADDR     - Dev server address (default: :8080)
//	RPCGEN_METRICS_ENABLED - Serve /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{Metrics: MetricsConfig{Enabled: true}})
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies RPCGEN_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPCGEN_INPUTS"); v != "" {
		cfg.Inputs = nil
		for _, in := range strings.Split(v, ",") {
			if in = strings.TrimSpace(in); in != "" {
				cfg.Inputs = append(cfg.Inputs, in)
			}
		}
	}

	if v := os.Getenv("RPCGEN_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("RPCGEN_OUTPUT_PACKAGE"); v != "" {
		cfg.Output.Package = v
	}
	if v := os.Getenv("RPCGEN_OUTPUT_LAYOUT"); v != "" {
		cfg.Output.Layout = v
	}

	if v := os.Getenv("RPCGEN_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("RPCGEN_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}

	if v := os.Getenv("RPCGEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RPCGEN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("RPCGEN_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watch.Debounce = d
		}
	}

	if v := os.Getenv("RPCGEN_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RPCGEN_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("RPCGEN_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("RPCGEN_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("RPCGEN_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Output.Path == "" {
		cfg.Output.Path = "."
	}
	if cfg.Output.Package == "" {
		cfg.Output.Package = "api"
	}
	if cfg.Output.Layout == "" {
		cfg.Output.Layout = "flat"
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = ".rpcgen-cache.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 200 * time.Millisecond
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "rpcgen"
	}
}

func validate(cfg *Config) error {
	validLayouts := map[string]bool{"flat": true, "files": true}
	if !validLayouts[cfg.Output.Layout] {
		return fmt.Errorf("output.layout must be 'flat' or 'files', got %q", cfg.Output.Layout)
	}
	if !isIdentifier(cfg.Output.Package) {
		return fmt.Errorf("output.package must be a Go identifier, got %q", cfg.Output.Package)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	for i, in := range cfg.Inputs {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("inputs[%d] is empty", i)
		}
	}

	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		return fmt.Errorf("server.addr must be host:port, got %q", cfg.Server.Addr)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
