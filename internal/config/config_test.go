// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouseapp/gatehouse/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultBackendAddr, cfg.Backend.Addr)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.Backend.MetricsAddr)
	assert.Equal(t, config.DefaultFrontendAddr, cfg.Frontend.Addr)
	assert.Equal(t, "http://"+config.DefaultBackendAddr, cfg.Frontend.BackendAddr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Backend.DatabaseURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
backend:
  addr: "0.0.0.0:9999"
  database_url: "postgres://db/gatehouse"
log:
  format: text
`)

	cfg, err := config.Load(path, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.Backend.Addr)
	assert.Equal(t, "postgres://db/gatehouse", cfg.Backend.DatabaseURL)
	assert.Equal(t, "text", cfg.Log.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, config.DefaultFrontendAddr, cfg.Frontend.Addr)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
backend:
  addr: "0.0.0.0:9999"
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	flags.String("database-url", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", "127.0.0.1:7000"}))

	cfg, err := config.Load(path, flags, map[string]string{
		"addr":         "backend.addr",
		"database-url": "backend.database_url",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Backend.Addr)
	// Unset flags do not clobber file or default values.
	assert.Empty(t, cfg.Backend.DatabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml", nil, nil)
	require.Error(t, err)
}

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) { c.Backend.DatabaseURL = "postgres://db/x" },
		},
		{
			name:    "missing database url",
			mutate:  func(_ *config.Config) {},
			wantErr: "backend.database_url is required",
		},
		{
			name: "missing addr",
			mutate: func(c *config.Config) {
				c.Backend.DatabaseURL = "postgres://db/x"
				c.Backend.Addr = ""
			},
			wantErr: "backend.addr is required",
		},
		{
			name: "bad log format",
			mutate: func(c *config.Config) {
				c.Backend.DatabaseURL = "postgres://db/x"
				c.Log.Format = "xml"
			},
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("", nil, nil)
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateBackend()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateFrontend(t *testing.T) {
	cfg, err := config.Load("", nil, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateFrontend())

	cfg.Frontend.BackendAddr = ""
	err = cfg.ValidateFrontend()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frontend.backend_addr is required")
}
