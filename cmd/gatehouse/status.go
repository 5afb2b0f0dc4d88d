// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouseapp/gatehouse/internal/config"
	"github.com/gatehouseapp/gatehouse/internal/webui"
)

// BackendStatus holds the reachable/healthy view of the backend process.
type BackendStatus struct {
	Reachable bool   `json:"reachable"`
	Ready     bool   `json:"ready"`
	Users     int64  `json:"users"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running backend",
		Long:  `Query the backend health probes and report readiness and the user count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().String("backend-addr", "http://"+config.DefaultBackendAddr, "backend base URL")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "backend metrics/health address")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := config.Load(configFile, cmd.Flags(), map[string]string{
		"backend-addr": "frontend.backend_addr",
		"metrics-addr": "backend.metrics_addr",
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status := queryBackendStatus(ctx, appCfg.Frontend.BackendAddr, appCfg.Backend.MetricsAddr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

// queryBackendStatus probes the readiness endpoint and fetches the user
// count. A failed count with a passing probe still reports reachable.
func queryBackendStatus(ctx context.Context, backendURL, metricsAddr string) BackendStatus {
	status := BackendStatus{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+metricsAddr+"/healthz/readiness", nil)
	if err != nil {
		status.Error = fmt.Sprintf("failed to build health request: %v", err)
		return status
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	//nolint:errcheck // close error on a read-only body is not actionable
	resp.Body.Close()

	status.Reachable = true
	status.Ready = resp.StatusCode == http.StatusOK

	count, err := webui.NewClient(backendURL).CountUsers(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to fetch user count: %v", err)
		return status
	}
	status.Users = count

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status BackendStatus) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "BACKEND\tREADY\tUSERS\tNOTE")
	_, _ = fmt.Fprintln(w, "-------\t-----\t-----\t----")

	reachable := "unreachable"
	if status.Reachable {
		reachable = "reachable"
	}
	note := "-"
	if status.Error != "" {
		note = status.Error
	}
	_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", reachable, status.Ready, status.Users, note)

	_ = w.Flush()
	return buf.String()
}
