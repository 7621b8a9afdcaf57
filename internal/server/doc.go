// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a running tab over local HTTP.
//
// A long-lived tab (tabsession watch --serve) can publish its session state
// and metrics so scripts and scrapers do not need to start a tab of their
// own.
//
// # Endpoints
//
//   - GET /health  - Liveness
//   - GET /status  - Session state, never tokens
//   - GET /metrics - Prometheus exposition of the session counters
//
// # Security
//
//   - Binds to 127.0.0.1 unless a host is given
//   - Optional bearer token, compared in constant time
//   - Security headers and no-store caching on every response
//
// # Usage
//
//	srv := server.New("127.0.0.1:9464", manager.Status, registry, log).
//		WithToken(os.Getenv("TABSESSION_STATUS_TOKEN"))
//	go srv.Serve(ctx)
package server
