// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch is the Bubble Tea view behind "tabsession watch". It shows
// the live session status, raises the timeout overlay during the warning
// window and extends the session on request. Keys and mouse events count as
// activity; terminal focus changes pause the validity checks.
package watch
