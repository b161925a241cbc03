// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the client's own metrics over HTTP.
//
// Endpoints:
//   - GET /metrics - Prometheus exposition
//   - GET /health  - history backend health and live exchange count
//
// The server binds to localhost by default and is started by the CLI when
// metrics.enabled is set.
package server
