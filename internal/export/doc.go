// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations to files.
//
// # Supported Formats
//
//   - JSON: the stored conversation shape, suitable for re-import
//   - Markdown: human-readable, with YAML frontmatter and cited sources
//   - YAML: the full message list as a YAML document
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(conv, exp, nil)
package export
