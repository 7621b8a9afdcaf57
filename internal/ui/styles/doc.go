// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the colour palette and status indicators shared by
// the terminal UI. All colours are Lip Gloss AdaptiveColor values, so light
// and dark terminals are handled automatically.
package styles
