// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouseapp/gatehouse/internal/config"
	"github.com/gatehouseapp/gatehouse/internal/httpapi"
	"github.com/gatehouseapp/gatehouse/internal/identity"
	identitypg "github.com/gatehouseapp/gatehouse/internal/identity/postgres"
	"github.com/gatehouseapp/gatehouse/internal/logging"
	"github.com/gatehouseapp/gatehouse/internal/observability"
	"github.com/gatehouseapp/gatehouse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// backendFlagKeys maps backend command flags onto config keys.
var backendFlagKeys = map[string]string{
	"addr":         "backend.addr",
	"database-url": "backend.database_url",
	"metrics-addr": "backend.metrics_addr",
	"log-format":   "log.format",
}

// NewBackendCmd creates the backend subcommand.
func NewBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Start the backend process (accounts, sessions, PostgreSQL)",
		Long: `Start the backend process which owns user and session records
and serves the account HTTP API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackend(cmd.Context(), cmd)
		},
	}

	cmd.Flags().String("addr", config.DefaultBackendAddr, "API listen address")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL env)")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")

	return cmd
}

func runBackend(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags(), backendFlagKeys)
	if err != nil {
		return err
	}
	if cfg.Backend.DatabaseURL == "" {
		cfg.Backend.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.ValidateBackend(); err != nil {
		return err
	}

	logging.SetDefault("gatehouse-backend", version, cfg.Log.Format)

	slog.Info("starting backend",
		"addr", cfg.Backend.Addr,
		"log_format", cfg.Log.Format,
	)

	pool, err := store.Connect(ctx, cfg.Backend.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	accounts := identitypg.NewAccountRepository(pool)
	sessions := identitypg.NewSessionRepository(pool)

	svc, err := identity.NewService(accounts, sessions, identity.NewArgon2idHasher())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability server: readiness is a live database ping, and the
	// account gauge reads straight through to the store.
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Backend.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Backend.MetricsAddr,
			func() bool {
				pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer pingCancel()
				return pool.Ping(pingCtx) == nil
			},
			func() float64 {
				countCtx, countCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer countCancel()
				count, countErr := accounts.Count(countCtx)
				if countErr != nil {
					return 0
				}
				return float64(count)
			},
		)
		metrics = obsServer.Metrics()

		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	api, err := httpapi.NewServer(svc, metrics, slog.Default())
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- serveErr
		}
	}()

	cmd.Println("Backend started")
	slog.Info("backend ready", "addr", cfg.Backend.Addr)

	err = waitForShutdown(ctx, errChan)

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if stopErr := httpSrv.Shutdown(shutdownCtx); stopErr != nil {
		slog.Warn("error stopping API server", "error", stopErr)
	}
	if obsServer != nil {
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			slog.Warn("error stopping observability server", "error", stopErr)
		}
	}

	slog.Info("shutdown complete")
	return err
}

// waitForShutdown blocks until a termination signal arrives, the context is
// cancelled, or a server reports a fatal error. Only the error case returns
// non-nil.
func waitForShutdown(ctx context.Context, errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		return nil
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
		return nil
	}
}

// monitorServerErrors watches a server's error channel and cancels the
// process context when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			slog.Error("background server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
