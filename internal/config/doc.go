// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for silochat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServiceConfig: Completion service URL, timeouts and rate limit
//   - HistoryConfig: History backend selection (none, http, sqlite, file)
//   - StreamConfig: Decoder chunk and record limits
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SILOCHAT_*)
//   - ~/.silochat/config.toml
//   - ~/.silochat/config.json
//   - Built-in defaults
//
// SILOCHAT_HOME moves the configuration directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := transport.NewClientWithConfig(transport.Config{
//	    BaseURL:       cfg.Service.BaseURL,
//	    HeaderTimeout: cfg.Service.HeaderTimeout(),
//	})
package config
