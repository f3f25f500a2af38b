// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patchbay/patchbay/internal/control"
	"github.com/patchbay/patchbay/internal/module"
	"github.com/patchbay/patchbay/internal/session"
)

// NewSessionCmd creates the session subcommand group.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Control the active session",
	}

	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionActivateCmd())
	cmd.AddCommand(newSessionDeactivateCmd())
	cmd.AddCommand(newSessionActionsCmd())
	cmd.AddCommand(newSessionInvokeCmd())

	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := control.NewClient(socketPath)
			snap, err := client.Session(cmd.Context())
			if err != nil {
				return err
			}
			if snap.PresetName != "" {
				cmd.Printf("State: %s\nPreset: %s (%s)\nModules: %d\n",
					snap.State, snap.PresetName, snap.PresetID, snap.Modules)
			} else {
				cmd.Printf("State: %s\n", snap.State)
			}
			return nil
		},
	}
}

func newSessionActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <preset-id-or-name>",
		Short: "Activate a preset as the session",
		Long: `Activate the given preset. Any running session is deactivated first.
Validation findings are printed; error-level findings block activation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			resp, err := client.Activate(cmd.Context(), args[0])

			printValidationResults(cmd, resp.Results)

			if errors.Is(err, session.ErrValidationFailed) {
				return fmt.Errorf("activation blocked by validation errors")
			}
			if err != nil {
				return err
			}
			cmd.Printf("Session %s\n", resp.State)
			return nil
		},
	}
}

func newSessionDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Stop the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := control.NewClient(socketPath)
			if err := client.Deactivate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Session deactivated")
			return nil
		},
	}
}

func newSessionActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <module-id>",
		Short: "List the live actions of a running module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			actions, err := client.Actions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var buf []byte
			w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tLABEL\tENABLED")
			for _, a := range actions {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%t\n", a.Key, a.Label, a.Enabled)
			}
			_ = w.Flush()
			cmd.Print(string(buf))
			return nil
		},
	}
}

func newSessionInvokeCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "invoke <module-id> <action-key>",
		Short: "Invoke an action on a running module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			if err := client.Invoke(cmd.Context(), args[0], args[1], wait); err != nil {
				return err
			}
			cmd.Println("Action invoked")
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the action handler to complete")

	return cmd
}

// printValidationResults renders validation findings one per line.
func printValidationResults(cmd *cobra.Command, results []module.ValidationResult) {
	for _, r := range results {
		if r.Key != "" {
			cmd.Printf("%s: %s/%s: %s\n", r.Level, r.ModuleID, r.Key, r.Message)
		} else {
			cmd.Printf("%s: %s: %s\n", r.Level, r.ModuleID, r.Message)
		}
	}
}
