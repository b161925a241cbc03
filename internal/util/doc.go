// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across silochat.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadRight: terminal column aware truncation for tables
//   - SingleLine: whitespace folding for previews and titles
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateRunes(util.SingleLine(prompt), 80)
//	cell := util.PadRight(title, 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
