// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting and log pipelines.
//
// Every command honours --json with the same envelope, so a wrapper script
// can check .success without knowing the command.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/tabsession/internal/session"
)

// JSONResponse is the envelope written by every command in JSON mode.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error describes the failure when Success is false
	Error *jsonError `json:"error"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	return &JSONResponse{
		Success: false,
		Error: &jsonError{
			Type:    errorType(err),
			Message: err.Error(),
			Details: errorDetails(err),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":{"type":"generic_error","message":"failed to marshal response: %s"},"timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// StatusData is the status command's payload.
type StatusData struct {
	State            string `json:"state"`
	Authenticated    bool   `json:"authenticated"`
	UserID           string `json:"user_id,omitempty"`
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
	RememberMe       bool   `json:"remember_me"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	IdleSeconds      int64  `json:"idle_seconds"`
	TimeoutSeconds   int64  `json:"timeout_seconds"`
	TokenExpiry      string `json:"token_expiry,omitempty"`
	Origin           string `json:"origin"`
	Backend          string `json:"backend"`
}

// newStatusData flattens a session status for JSON output.
func newStatusData(st session.Status) StatusData {
	data := StatusData{
		State:            st.State.String(),
		Authenticated:    st.State.IsAuthenticated(),
		UserID:           st.User.ID,
		Email:            st.User.Email,
		Name:             st.User.Name,
		RememberMe:       st.RememberMe,
		RemainingSeconds: int64(st.Remaining.Seconds()),
		IdleSeconds:      int64(st.Idle.Seconds()),
		TimeoutSeconds:   int64(st.Threshold.Seconds()),
		Origin:           st.Origin,
		Backend:          st.Backend,
	}
	if !st.TokenExpiry.IsZero() {
		data.TokenExpiry = st.TokenExpiry.UTC().Format(time.RFC3339)
	}
	return data
}

// VersionData is the version command's payload.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// ActionData is the payload of commands that only report an outcome.
type ActionData struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}
