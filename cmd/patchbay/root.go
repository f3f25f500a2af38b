// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFile string
	socketPath string
)

// NewRootCmd creates the root command for the Patchbay CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patchbay",
		Short: "Patchbay - a local module execution platform",
		Long: `Patchbay runs pluggable modules as isolated processes, grouped into
presets that activate as a single session. The host process owns the module
registry and session lifecycle; every other subcommand talks to it over a
local control socket.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "", "host control socket path")

	cmd.AddCommand(NewHostCmd())
	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewRestartCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewModulesCmd())
	cmd.AddCommand(NewPresetCmd())
	cmd.AddCommand(NewSessionCmd())

	return cmd
}
