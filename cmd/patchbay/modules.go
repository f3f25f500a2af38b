// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patchbay/patchbay/internal/control"
)

// NewModulesCmd creates the modules subcommand.
func NewModulesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List modules discovered by the host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := control.NewClient(socketPath)
			defs, err := client.Modules(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(defs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal modules: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			var buf []byte
			w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tSETTINGS\tACTIONS")
			for _, def := range defs {
				keys := make([]string, 0, len(def.Settings))
				for _, s := range def.Settings {
					keys = append(keys, s.Key)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					def.ID, def.Name, def.Version,
					strings.Join(keys, ","), strings.Join(def.Actions, ","))
			}
			_ = w.Flush()
			cmd.Print(string(buf))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output modules as JSON")

	return cmd
}
