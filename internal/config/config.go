// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

// Package config loads host configuration from defaults, an optional YAML
// file, and command-line flag overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/patchbay/patchbay/internal/xdg"
)

// Config holds the host process configuration.
type Config struct {
	// ModulesDir is scanned for installed module packages.
	ModulesDir string
	// PresetsPath is the preset store file.
	PresetsPath string
	// ControlSocket is the Unix socket serving the control channel.
	ControlSocket string
	// MetricsAddr is the metrics/probe HTTP address (empty = disabled).
	MetricsAddr string
	// LogFormat is "json" or "text".
	LogFormat string
}

// Configuration keys. Flags use the same dotted names.
const (
	KeyModulesDir    = "modules.dir"
	KeyPresetsPath   = "presets.path"
	KeyControlSocket = "control.socket"
	KeyMetricsAddr   = "metrics.addr"
	KeyLogFormat     = "log.format"
)

// defaultMetricsAddr binds metrics to loopback only.
const defaultMetricsAddr = "127.0.0.1:9600"

// DefaultPath returns the default config file location. The file is optional.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "patchbay.yaml")
}

// Load assembles the configuration. path may be empty, in which case the
// default config file is used when present. flags may be nil; set flags
// override file values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		KeyModulesDir:    xdg.ModulesDir(),
		KeyPresetsPath:   filepath.Join(xdg.DataDir(), "presets.yaml"),
		KeyControlSocket: "",
		KeyMetricsAddr:   defaultMetricsAddr,
		KeyLogFormat:     "json",
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	// A missing default config file is fine; an explicit one must exist.
	_, statErr := os.Stat(path)
	if explicit && statErr != nil {
		return nil, fmt.Errorf("load config file %s: %w", path, statErr)
	}
	if statErr == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		// Passing k skips unchanged flags whose keys are already set.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flag overrides: %w", err)
		}
	}

	cfg := &Config{
		ModulesDir:    k.String(KeyModulesDir),
		PresetsPath:   k.String(KeyPresetsPath),
		ControlSocket: k.String(KeyControlSocket),
		MetricsAddr:   k.String(KeyMetricsAddr),
		LogFormat:     k.String(KeyLogFormat),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ModulesDir == "" {
		return fmt.Errorf("%s is required", KeyModulesDir)
	}
	if c.PresetsPath == "" {
		return fmt.Errorf("%s is required", KeyPresetsPath)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("%s must be 'json' or 'text', got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}
