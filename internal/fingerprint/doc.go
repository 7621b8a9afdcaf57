// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fingerprint derives a device signature and compares it with the
// one captured at login.
//
// The signature is a hash over the user agent, language, platform, terminal
// size, timezone name and a rendering signature. A mismatch is a soft signal:
// it is logged and reported, never enforced.
package fingerprint
