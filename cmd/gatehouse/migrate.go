// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouseapp/gatehouse/internal/config"
	"github.com/gatehouseapp/gatehouse/internal/store"
)

// migrateConfig holds flags for the migrate subcommand.
type migrateConfig struct {
	down  bool
	force int
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cfg)
		},
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL env)")
	cmd.Flags().BoolVar(&cfg.down, "down", false, "roll back all migrations (destructive)")
	cmd.Flags().IntVar(&cfg.force, "force", -1, "force the schema version after manual repair")

	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *migrateConfig) error {
	appCfg, err := config.Load(configFile, cmd.Flags(), map[string]string{
		"database-url": "backend.database_url",
	})
	if err != nil {
		return err
	}

	databaseURL := appCfg.Backend.DatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (flag, config file, or DATABASE_URL)")
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()

	switch {
	case cfg.force >= 0:
		cmd.Println("Forcing schema version...")
		if err := migrator.Force(cfg.force); err != nil {
			return err
		}
	case cfg.down:
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema at version %d (dirty: %t)\n", version, dirty)
	return nil
}
