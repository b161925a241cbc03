// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silohub/chat/internal/export"
	"github.com/silohub/chat/internal/model"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Manage conversation history",
	}
	cmd.AddCommand(
		newHistoryListCmd(opts),
		newHistoryShowCmd(opts),
		newHistoryClearCmd(opts),
		newHistoryDeleteCmd(opts),
		newHistoryExportCmd(opts),
		newHistoryFeedbackCmd(opts),
	)
	return cmd
}

func newHistoryListCmd(opts *rootOptions) *cobra.Command {
	var (
		offset  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offset < 0 {
				return &UsageError{Message: "--offset must not be negative"}
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				var metas []model.ConversationMeta
				if offset == 0 {
					metas = app.Store.List()
				} else {
					convs, err := app.Sync.Page(ctx, offset)
					if err != nil {
						return err
					}
					metas = metasFromConversations(convs)
				}

				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(metas)
				}
				renderHistoryTable(cmd.OutOrStdout(), metas)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many conversations (pages are fetched from the backend)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newHistoryShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				conv, err := app.Sync.Open(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return export.Write(cmd.OutOrStdout(), conv, export.NewJSONExporter(export.DefaultOptions()))
				}
				renderConversation(cmd.OutOrStdout(), conv)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newHistoryClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversation-id>",
		Short: "Remove every message of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				if err := app.Controller.ClearChat(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Cleared ")+args[0])
				return nil
			})
		},
	}
}

func newHistoryDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				if err := app.Controller.DeleteChat(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted ")+args[0])
				return nil
			})
		},
	}
}

func newHistoryExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		outputDir string
		toStdout  bool
		noErrors  bool
	)
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation to JSON, Markdown or YAML",
		Example: `  silochat history export 3f2a... --format markdown
  silochat history export 3f2a... --format yaml --stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportOpts := export.DefaultOptions()
			exportOpts.OutputDir = outputDir
			exportOpts.IncludeErrors = !noErrors

			exp, err := export.ForFormat(format, exportOpts)
			if err != nil {
				return &UsageError{Message: err.Error()}
			}

			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				conv, err := app.Sync.Open(ctx, args[0])
				if err != nil {
					return err
				}
				if toStdout {
					return export.Write(cmd.OutOrStdout(), conv, exp)
				}
				path, err := export.ExportToFile(conv, exp, exportOpts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Export format: json, markdown or yaml")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Write to stdout instead of a file")
	cmd.Flags().BoolVar(&noErrors, "no-errors", false, "Leave error messages out")
	return cmd
}

func newHistoryFeedbackCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <message-id> <positive|negative|neutral>",
		Short: "Rate an answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fb, err := parseFeedback(args[1])
			if err != nil {
				return err
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				if err := app.Controller.SetFeedback(ctx, args[0], fb); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Recorded ")+string(fb))
				return nil
			})
		},
	}
}
