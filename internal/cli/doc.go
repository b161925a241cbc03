// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the silochat command line.
//
// # Commands
//
//   - ask: send one prompt and stream the answer
//   - chat: interactive session with line editing and slash commands
//   - history: list, show, clear, delete, export and rate conversations
//   - health: history backend status
//   - config: show, get, set, init and locate the config file
//
// Every command builds the same component graph (see App): config, logger,
// metrics registry, history backend, history.Sync and chat.Controller.
// Output is styled with lipgloss and falls back to plain text when stdout is
// not a terminal or NO_COLOR is set.
//
// # Exit Codes
//
// Failed exchanges exit non-zero: 5 for transport failures, 8 for timeouts,
// 130 when generation was stopped, 1 otherwise. See ExitCode.
package cli
