// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchbay/patchbay/internal/control"
	"github.com/patchbay/patchbay/internal/supervisor"
	"github.com/patchbay/patchbay/pkg/errutil"
)

// defaultLifecycleTimeout bounds start/stop/restart waits.
const defaultLifecycleTimeout = 15 * time.Second

// newSupervisor builds a supervisor probing the configured control socket.
func newSupervisor() *supervisor.Supervisor {
	client := control.NewClient(socketPath)
	return supervisor.New(client,
		supervisor.WithLauncher(launcherArgs()),
	)
}

// launcherArgs propagates the controller's global flags to the spawned host
// so both sides agree on socket and config locations.
func launcherArgs() supervisor.Launcher {
	var extra []string
	if configFile != "" {
		extra = append(extra, "--config", configFile)
	}
	if socketPath != "" {
		extra = append(extra, "--socket", socketPath)
	}
	return supervisor.NewExecLauncher(extra...)
}

// NewStartCmd creates the start subcommand.
func NewStartCmd() *cobra.Command {
	var (
		force   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Patchbay host process",
		Long: `Start the host process in the background and wait until it answers on
the control socket. Starting an already-running host is a no-op unless
--force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup := newSupervisor()
			if err := sup.Start(cmd.Context(), force, timeout); err != nil {
				errutil.LogError(slog.Default(), "failed to start host", err)
				return err
			}
			cmd.Println("Host is running")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "restart the host if it is already running")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultLifecycleTimeout, "time to wait for the host to become ready")

	return cmd
}

// NewStopCmd creates the stop subcommand.
func NewStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the Patchbay host process",
		Long: `Request a graceful host shutdown and wait for the process to exit.
If the host does not stop within the timeout it is terminated forcefully,
which is reported as a degraded outcome.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup := newSupervisor()
			err := sup.Stop(cmd.Context(), timeout)
			if errors.Is(err, supervisor.ErrStopForced) {
				cmd.Println("Host terminated forcefully after graceful stop timed out")
				return nil
			}
			if err != nil {
				errutil.LogError(slog.Default(), "failed to stop host", err)
				return err
			}
			cmd.Println("Host stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultLifecycleTimeout, "time to wait for graceful shutdown before escalating")

	return cmd
}

// NewRestartCmd creates the restart subcommand.
func NewRestartCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the Patchbay host process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup := newSupervisor()
			if err := sup.Restart(cmd.Context(), timeout); err != nil {
				errutil.LogError(slog.Default(), "failed to restart host", err)
				return err
			}
			cmd.Println("Host restarted")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultLifecycleTimeout, "per-phase timeout for stop and start")

	return cmd
}
