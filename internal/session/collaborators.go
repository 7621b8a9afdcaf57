// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"time"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/credentials"
)

// Clock supplies the current time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Navigator sends the user to the login surface.
type Navigator interface {
	Redirect(reason Reason)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Reason)

// Redirect implements Navigator.
func (f NavigatorFunc) Redirect(r Reason) { f(r) }

// WarningListener drives a countdown UI.
type WarningListener interface {
	// OnWarning is called on every tick while in Warning with the exact
	// time left.
	OnWarning(remaining time.Duration)

	// OnActive is called when a warning is dismissed by activity or extend.
	OnActive()
}

// Alerter shows user-visible failures of the refresh and extend flows.
type Alerter interface {
	Error(msg string)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(string)

// Error implements Alerter.
func (f AlerterFunc) Error(msg string) { f(msg) }

// AuthAPI is the backend collaborator. *authapi.Client implements it.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*authapi.LoginResponse, error)
	Me(ctx context.Context, accessToken string) (credentials.UserProfile, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Extend(ctx context.Context, accessToken string) (authapi.TokenPair, error)
	SessionInfo(ctx context.Context, accessToken string) (map[string]any, error)
	Logout(ctx context.Context, refreshToken string) error
}

var _ AuthAPI = (*authapi.Client)(nil)

type nopNavigator struct{}

func (nopNavigator) Redirect(Reason) {}

type nopWarnings struct{}

func (nopWarnings) OnWarning(time.Duration) {}
func (nopWarnings) OnActive()               {}

type nopAlerter struct{}

func (nopAlerter) Error(string) {}
