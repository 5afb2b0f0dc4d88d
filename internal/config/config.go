// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then command-line flag overrides.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values applied before any file or flag layer.
const (
	DefaultBackendAddr  = "127.0.0.1:8090"
	DefaultMetricsAddr  = "127.0.0.1:9100"
	DefaultFrontendAddr = "127.0.0.1:8080"
	DefaultLogFormat    = "json"
)

// Config holds settings for both processes. Each command reads only the
// section it needs.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Frontend FrontendConfig `koanf:"frontend"`
	Log      LogConfig      `koanf:"log"`
}

// BackendConfig configures the account/session backend process.
type BackendConfig struct {
	Addr        string `koanf:"addr"`
	DatabaseURL string `koanf:"database_url"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// FrontendConfig configures the HTML frontend process.
type FrontendConfig struct {
	Addr        string `koanf:"addr"`
	BackendAddr string `koanf:"backend_addr"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Load builds a Config from defaults, an optional YAML file at path (empty
// path skips the file layer), and flag overrides. flagKeys maps flag names
// to config keys; only flags the user actually set override earlier layers.
func Load(path string, flags *pflag.FlagSet, flagKeys map[string]string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"backend.addr":          DefaultBackendAddr,
		"backend.metrics_addr":  DefaultMetricsAddr,
		"frontend.addr":         DefaultFrontendAddr,
		"frontend.backend_addr": "http://" + DefaultBackendAddr,
		"log.format":            DefaultLogFormat,
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// ValidateBackend checks the settings the backend command requires.
func (c *Config) ValidateBackend() error {
	if c.Backend.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("backend.addr is required")
	}
	if c.Backend.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("backend.database_url is required")
	}
	return c.validateLog()
}

// ValidateFrontend checks the settings the frontend command requires.
func (c *Config) ValidateFrontend() error {
	if c.Frontend.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("frontend.addr is required")
	}
	if c.Frontend.BackendAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("frontend.backend_addr is required")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}
