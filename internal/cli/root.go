// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	baseURL    string
	history    string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "silochat",
		Short: "Streaming chat client for a completion service",
		Long: `silochat sends prompts to a completion service, prints answers as they
stream in and keeps conversation history locally or on the server.

Quick Start:
  silochat ask "What is the capital of France?"   # One question
  silochat chat                                   # Interactive session
  silochat history list                           # Past conversations
  silochat health                                 # Service and history status`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ~/.silochat/config.toml)")
	flags.StringVar(&opts.baseURL, "base-url", "", "Completion service URL (overrides service.base_url)")
	flags.StringVar(&opts.history, "history", "", "History backend: http, sqlite, file or none")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newAskCmd(opts),
		newChatCmd(opts),
		newHistoryCmd(opts),
		newHealthCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(ExitCode(err))
	}
}

// runWithApp builds the application, loads history and runs fn.
func runWithApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	app, err := newApp(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Log.Warn().Err(cerr).Msg("close history backend")
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, app)
}
