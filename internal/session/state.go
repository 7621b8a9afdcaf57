// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"net/url"
)

// =============================================================================
// STATE
// =============================================================================

// State is the position of a tab in the inactivity state machine.
type State int

const (
	// Unauthenticated means no session record. No timers run.
	Unauthenticated State = iota
	// Active means the session is valid and the user is not idle.
	Active
	// Warning means expiry is less than the warning lead away.
	Warning
	// Expired is terminal until a fresh login.
	Expired
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Active:
		return "active"
	case Warning:
		return "warning"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsAuthenticated returns true if the state allows activity.
func (s State) IsAuthenticated() bool {
	return s == Active || s == Warning
}

// =============================================================================
// REASONS
// =============================================================================

// Reason tells the login surface why the user was sent there.
type Reason string

const (
	// ReasonTimeout is inactivity expiry or an ordinary refresh failure.
	ReasonTimeout Reason = "timeout"
	// ReasonSecurity is a server-side revocation.
	ReasonSecurity Reason = "security"
	// ReasonDevice is a device identity problem.
	ReasonDevice Reason = "device"
	// ReasonExpired is a session that ended in another tab.
	ReasonExpired Reason = "expired"
)

// LoginURL appends ?reason= to base. An empty reason returns base unchanged.
func LoginURL(base string, reason Reason) string {
	if reason == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("reason", string(reason))
	u.RawQuery = q.Encode()
	return u.String()
}
