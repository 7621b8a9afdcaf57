// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the tabsession packages.
//
//   - AtomicWriteFile: crash-safe, cross-process safe file replacement
//   - TruncateWidth: cell-width aware truncation for terminal output
package util
