// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/fingerprint"
	"github.com/jeranaias/tabsession/internal/storage"
)

var (
	// ErrNoSession means there is no stored session to act on.
	ErrNoSession = errors.New("no active session")

	// ErrNoRefreshToken means the session has no refresh token. Fatal.
	ErrNoRefreshToken = errors.New("no refresh token, please log in again")

	// ErrRefreshRejected means the server refused the refresh token. Fatal.
	ErrRefreshRejected = errors.New("refresh rejected")

	// ErrNetwork is a transport failure talking to the auth API.
	ErrNetwork = authapi.ErrNetwork

	// ErrStorageUnavailable means the shared store could not be used and the
	// session is held in memory only.
	ErrStorageUnavailable = storage.ErrUnavailable

	// ErrFingerprintMismatch is the soft device-change signal. Never fatal.
	ErrFingerprintMismatch = fingerprint.ErrMismatch

	// ErrExpired means the tab's session expired and needs a fresh login.
	ErrExpired = errors.New("session expired")

	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("session manager disposed")
)

// RefreshRejectedError carries the server's reason for refusing a refresh.
type RefreshRejectedError struct {
	Detail   string
	Security bool
	Err      error
}

// Error implements the error interface.
func (e *RefreshRejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("refresh rejected: %s", e.Detail)
	}
	return "refresh rejected"
}

// Is matches ErrRefreshRejected.
func (e *RefreshRejectedError) Is(target error) bool { return target == ErrRefreshRejected }

// Unwrap returns the underlying API error.
func (e *RefreshRejectedError) Unwrap() error { return e.Err }

// Reason maps the rejection to a login reason.
func (e *RefreshRejectedError) Reason() Reason {
	if e.Security {
		return ReasonSecurity
	}
	return ReasonTimeout
}
