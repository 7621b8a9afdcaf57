// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exposes Prometheus metrics for the session manager.
//
// # Key Types
//
//   - Metrics: counters for state transitions, login redirects, token
//     operations, sibling-tab events and fingerprint checks, plus a gauge
//     for the current state
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	metrics := telemetry.MustNewMetrics(reg)
//	mgr := session.New(deps, session.WithMetrics(metrics))
//
// A nil *Metrics is accepted everywhere and records nothing.
//
// # Privacy
//
// Labels carry state names, reasons and storage keys only. Tokens, user
// identifiers and fingerprints are never exported.
package telemetry
