// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silohub/chat/internal/history"
)

// healthReport is the --json output of health.
type healthReport struct {
	Service        string         `json:"service"`
	Backend        string         `json:"backend"`
	History        history.Health `json:"history"`
	ServerManaged  bool           `json:"server_managed"`
	Conversations  int            `json:"conversations"`
	HistoryLoading string         `json:"history_load"`
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the history backend",
		Long: `Check the history backend and report whether conversations are being
saved, and whether the server keeps them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				h := app.Sync.Health()
				report := healthReport{
					Service:        app.Config.Service.BaseURL,
					Backend:        app.Config.History.Backend,
					History:        h,
					ServerManaged:  app.Sync.ServerManaged(),
					Conversations:  len(app.Store.List()),
					HistoryLoading: string(app.Store.HistoryStatus()),
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}

				fmt.Fprintln(out, TitleStyle.Render("silochat health"))
				fmt.Fprintf(out, "%s %s\n", RenderLabel("Service:"), report.Service)
				fmt.Fprintf(out, "%s %s %s\n", RenderLabel("History backend:"), report.Backend, RenderStatus(string(h.Status)))
				fmt.Fprintf(out, "%s %s\n", RenderLabel("Status:"), h.Status)
				fmt.Fprintf(out, "%s %v\n", RenderLabel("Available:"), h.Available)
				fmt.Fprintf(out, "%s %v\n", RenderLabel("Server history:"), report.ServerManaged)
				fmt.Fprintf(out, "%s %d\n", RenderLabel("Conversations:"), report.Conversations)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
