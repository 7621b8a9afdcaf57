// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	"github.com/jeranaias/tabsession/internal/config"
)

// Config holds the manager's timings.
type Config struct {
	// InactivityTimeout is the idle threshold without remember-me (default: 2 hours)
	InactivityTimeout time.Duration

	// RememberMeTimeout is the idle threshold with remember-me (default: 24 hours)
	RememberMeTimeout time.Duration

	// WarningLead is how long before expiry the warning starts (default: 5 minutes)
	WarningLead time.Duration

	// TickInterval is the inactivity check period (default: 1 second)
	TickInterval time.Duration

	// ValidityInterval is the server validity check period (default: 5 minutes)
	ValidityInterval time.Duration

	// RefreshSkew refreshes a JWT access token this long before its exp.
	RefreshSkew time.Duration

	// RefreshMinInterval limits reactive refreshes triggered by 401s.
	RefreshMinInterval time.Duration

	// CheckFingerprint runs the soft device check when a stored session loads.
	CheckFingerprint bool

	// ExternalTick disables the manager's own timers. The host then drives
	// Tick and CheckValidity itself, as the terminal UI does from its
	// event loop.
	ExternalTick bool
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout:  2 * time.Hour,
		RememberMeTimeout:  24 * time.Hour,
		WarningLead:        5 * time.Minute,
		TickInterval:       time.Second,
		ValidityInterval:   5 * time.Minute,
		RefreshSkew:        time.Minute,
		RefreshMinInterval: 10 * time.Second,
		CheckFingerprint:   true,
	}
}

// ConfigFrom maps the [session] table of the application config.
func ConfigFrom(c config.SessionConfig) Config {
	return Config{
		InactivityTimeout:  c.InactivityTimeout.Std(),
		RememberMeTimeout:  c.RememberMeTimeout.Std(),
		WarningLead:        c.WarningLead.Std(),
		TickInterval:       c.TickInterval.Std(),
		ValidityInterval:   c.ValidityInterval.Std(),
		RefreshSkew:        c.RefreshSkew.Std(),
		RefreshMinInterval: c.RefreshMinInterval.Std(),
		CheckFingerprint:   c.CheckFingerprint,
	}
}

// Threshold returns the idle limit for a remember-me choice.
func (c Config) Threshold(rememberMe bool) time.Duration {
	if rememberMe {
		return c.RememberMeTimeout
	}
	return c.InactivityTimeout
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.RememberMeTimeout <= 0 {
		c.RememberMeTimeout = d.RememberMeTimeout
	}
	if c.WarningLead <= 0 {
		c.WarningLead = d.WarningLead
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.ValidityInterval <= 0 {
		c.ValidityInterval = d.ValidityInterval
	}
	return c
}
