// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchbay/patchbay/internal/control"
)

// HostStatus holds the status information reported by the status command.
type HostStatus struct {
	Running        bool   `json:"running"`
	Health         string `json:"health,omitempty"`
	Version        string `json:"version,omitempty"`
	LoadedModules  int    `json:"loaded_modules"`
	ActiveSessions int    `json:"active_sessions"`
	SessionState   string `json:"session_state,omitempty"`
	PresetName     string `json:"preset_name,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds,omitempty"`
	Error          string `json:"error,omitempty"`
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
		Short: "Show status of the Patchbay host",
		Long:  `Show the health, module count, and active session of the running host.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := control.NewClient(socketPath)
	status := queryHostStatus(cmd.Context(), client)

	var output string
	var err error
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryHostStatus collects the host's diagnostics and session snapshot.
// An unreachable host is a normal outcome reported in the status, not an
// error that aborts the command.
func queryHostStatus(ctx context.Context, client *control.Client) HostStatus {
	var status HostStatus

	if !client.IsReachable(ctx, 2*time.Second) {
		status.Error = "host not reachable"
		return status
	}
	status.Running = true
	status.Health = "healthy"

	diag, err := client.Diagnostics(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to query diagnostics: %v", err)
		return status
	}
	status.Version = diag.Version
	status.LoadedModules = diag.LoadedModules
	status.ActiveSessions = diag.ActiveSessions
	if start, parseErr := time.Parse(time.RFC3339, diag.UptimeStart); parseErr == nil {
		status.UptimeSeconds = int64(time.Since(start).Seconds())
	}

	snap, err := client.Session(ctx)
	if err == nil {
		status.SessionState = string(snap.State)
		status.PresetName = snap.PresetName
	}

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status HostStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "HOST\tHEALTH\tMODULES\tSESSION\tUPTIME")
	_, _ = fmt.Fprintln(w, "----\t------\t-------\t-------\t------")

	if status.Running {
		sessionCol := status.SessionState
		if status.PresetName != "" {
			sessionCol = fmt.Sprintf("%s (%s)", status.SessionState, status.PresetName)
		}
		_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\t%s\n",
			status.Health, status.LoadedModules, sessionCol, formatUptime(status.UptimeSeconds))
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "stopped\t-\t-\t-\t%s\n", reason)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status HostStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
