// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouseapp/gatehouse/internal/config"
	"github.com/gatehouseapp/gatehouse/internal/logging"
	"github.com/gatehouseapp/gatehouse/internal/webui"
)

// frontendFlagKeys maps frontend command flags onto config keys.
var frontendFlagKeys = map[string]string{
	"addr":         "frontend.addr",
	"backend-addr": "frontend.backend_addr",
	"log-format":   "log.format",
}

// NewFrontendCmd creates the frontend subcommand.
func NewFrontendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frontend",
		Short: "Start the frontend process (HTML UI)",
		Long: `Start the frontend process which serves the HTML user interface
and proxies signup and login to the backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFrontend(cmd.Context(), cmd)
		},
	}

	cmd.Flags().String("addr", config.DefaultFrontendAddr, "UI listen address")
	cmd.Flags().String("backend-addr", "http://"+config.DefaultBackendAddr, "backend base URL")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")

	return cmd
}

func runFrontend(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags(), frontendFlagKeys)
	if err != nil {
		return err
	}
	if err := cfg.ValidateFrontend(); err != nil {
		return err
	}

	logging.SetDefault("gatehouse-frontend", version, cfg.Log.Format)

	slog.Info("starting frontend",
		"addr", cfg.Frontend.Addr,
		"backend_addr", cfg.Frontend.BackendAddr,
	)

	ui, err := webui.NewServer(webui.NewClient(cfg.Frontend.BackendAddr), slog.Default())
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Frontend.Addr,
		Handler:           ui.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- serveErr
		}
	}()

	cmd.Println("Frontend started")
	slog.Info("frontend ready", "addr", cfg.Frontend.Addr)

	err = waitForShutdown(ctx, errChan)

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if stopErr := httpSrv.Shutdown(shutdownCtx); stopErr != nil {
		slog.Warn("error stopping UI server", "error", stopErr)
	}

	slog.Info("shutdown complete")
	return err
}
