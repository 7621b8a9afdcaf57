// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package activity tracks the most recent user activity signal.
//
// The tracker holds one timestamp per session manager. Recording never moves
// it backwards; only Reset, used when a new session starts or is extended,
// may set an earlier value.
package activity
