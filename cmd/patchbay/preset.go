// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patchbay/patchbay/internal/control"
	"github.com/patchbay/patchbay/internal/preset"
)

// NewPresetCmd creates the preset subcommand group.
func NewPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage session presets",
		Long:  `List, save, and delete the named module configurations the host can activate.`,
	}

	cmd.AddCommand(newPresetListCmd())
	cmd.AddCommand(newPresetSaveCmd())
	cmd.AddCommand(newPresetDeleteCmd())

	return cmd
}

func newPresetListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := control.NewClient(socketPath)
			presets, err := client.Presets(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(presets, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal presets: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			var buf []byte
			w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tMODULES")
			for _, p := range presets {
				enabled := 0
				for _, m := range p.Modules {
					if m.Enabled {
						enabled++
					}
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d enabled / %d total\n",
					p.ID, p.Name, enabled, len(p.Modules))
			}
			_ = w.Flush()
			cmd.Print(string(buf))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output presets as JSON")

	return cmd
}

func newPresetSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Save a preset from a YAML file",
		Long: `Save a preset described by a YAML file. A preset without an id is
assigned a new one; saving an existing id replaces the stored preset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read preset file: %w", err)
			}

			var p preset.Preset
			if err := yaml.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("failed to parse preset file: %w", err)
			}
			if p.ID == "" {
				p.ID = preset.NewID()
			}

			client := control.NewClient(socketPath)
			if err := client.SavePreset(cmd.Context(), p); err != nil {
				return err
			}
			cmd.Printf("Preset %q saved (id %s)\n", p.Name, p.ID)
			return nil
		},
	}

	return cmd
}

func newPresetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			if err := client.DeletePreset(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Preset %s deleted\n", args[0])
			return nil
		},
	}

	return cmd
}
