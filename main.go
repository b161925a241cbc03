// silochat - a streaming chat client for a completion service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/silohub/chat/internal/cli"

func main() {
	cli.Execute()
}
