// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for the tabsession commands.
//
// Handlers always return errors; main decides how to display them and
// which exit code to use.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/config"
	"github.com/jeranaias/tabsession/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates there is no usable session
	ExitAuthError = 4
	// ExitNetworkError indicates the auth server could not be reached
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "login", "extend")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NewCommandError creates a new command error.
func NewCommandError(command, reason string, err error) error {
	return &CommandError{Command: command, Reason: reason, Err: err}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "is required", Example: usage}
}

// ErrInvalidFormat reports a value that does not parse.
func ErrInvalidFormat(field, value, expected string) error {
	return &ValidationError{Field: field, Value: value, Reason: "must be " + expected}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// errorType names err for the JSON error envelope.
func errorType(err error) string {
	var (
		validationErr *ValidationError
		rejectedErr   *session.RefreshRejectedError
		cfgErrs       config.ValidateErrors
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &cfgErrs):
		return "config_error"
	case errors.As(err, &rejectedErr):
		return "refresh_rejected"
	case errors.Is(err, authapi.ErrNetwork):
		return "network_error"
	case isAuthError(err):
		return "auth_error"
	default:
		return "generic_error"
	}
}

// errorDetails returns the structured fields of err, if any.
func errorDetails(err error) map[string]any {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		d := map[string]any{"field": validationErr.Field, "reason": validationErr.Reason}
		if validationErr.Value != "" {
			d["value"] = validationErr.Value
		}
		return d
	}
	var rejectedErr *session.RefreshRejectedError
	if errors.As(err, &rejectedErr) {
		return map[string]any{"detail": rejectedErr.Detail, "login_reason": string(rejectedErr.Reason())}
	}
	return nil
}

func isAuthError(err error) bool {
	return errors.Is(err, session.ErrNoSession) ||
		errors.Is(err, session.ErrExpired) ||
		errors.Is(err, session.ErrNoRefreshToken) ||
		errors.Is(err, session.ErrRefreshRejected) ||
		errors.Is(err, authapi.ErrUnauthorized)
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}

	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, authapi.ErrNetwork):
		return ExitNetworkError
	case isAuthError(err):
		return ExitAuthError
	}

	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) && apiErr.Security() {
		return ExitAuthError
	}

	return ExitGeneralError
}

// jsonError is the error payload inside a JSON response.
type jsonError struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
