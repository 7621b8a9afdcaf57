// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/credentials"
)

// Configuration constants for the auth API.
const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every request.
	DefaultTimeout = 15 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 1 * 1024 * 1024
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized indicates the server rejected the credential (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse indicates a 2xx response the client could not use.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status int
	Detail string
	Reason string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth api error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("auth api error (HTTP %d)", e.Status)
}

// Unwrap lets errors.Is match ErrUnauthorized on a 401.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Security reports whether the server indicated a security revocation
// rather than an ordinary expiry.
func (e *APIError) Security() bool {
	if e.Status == http.StatusForbidden || strings.EqualFold(e.Reason, "security") {
		return true
	}
	d := strings.ToLower(e.Detail)
	return strings.Contains(d, "revoked") || strings.Contains(d, "security") || strings.Contains(d, "compromised")
}

// apiErrorResponse is the FastAPI-style error body.
type apiErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
	Reason string          `json:"reason"`
}

// =============================================================================
// TYPES
// =============================================================================

// TokenPair is an access and refresh token issued together.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// LoginResponse is returned by /auth/login.
type LoginResponse struct {
	TokenPair
	User credentials.UserProfile `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the auth API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	log        zerolog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "tabsession",
		log:       log.With().Str("component", "authapi").Logger(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// ENDPOINTS
// =============================================================================

// Login exchanges email and password for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || (out.User.ID == "" && out.User.Email == "") {
		return nil, fmt.Errorf("login: %w", ErrMalformedResponse)
	}
	return &out, nil
}

// Me returns the user the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (credentials.UserProfile, error) {
	var user credentials.UserProfile
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &user); err != nil {
		return credentials.UserProfile{}, err
	}
	return user, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out refreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("refresh: %w", ErrMalformedResponse)
	}
	return out.AccessToken, nil
}

// Extend exchanges the current access token for a fresh token pair.
func (c *Client) Extend(ctx context.Context, accessToken string) (TokenPair, error) {
	var out TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/session/extend", accessToken, nil, &out); err != nil {
		return TokenPair{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("extend: %w", ErrMalformedResponse)
	}
	return out, nil
}

// SessionInfo returns the server's metadata about the session.
func (c *Client) SessionInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/auth/session/info", accessToken, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("session info: %w", ErrMalformedResponse)
	}
	return out, nil
}

// Logout asks the server to revoke the refresh token. The server answers 200
// regardless, so only transport failures are reported.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", "", refreshRequest{RefreshToken: refreshToken}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil
	}
	return err
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	// Headers and bodies carry credentials and are never logged.
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("auth api response")

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%s %s: %w", method, path, ErrMalformedResponse)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}
	return nil
}

// parseAPIError builds an APIError from a FastAPI-style body. A string
// detail is used as is; a structured detail is kept as compact JSON.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var resp apiErrorResponse
	if json.Unmarshal(body, &resp) != nil {
		return apiErr
	}
	apiErr.Reason = resp.Reason
	if len(resp.Detail) == 0 {
		return apiErr
	}

	var detail string
	if json.Unmarshal(resp.Detail, &detail) == nil {
		apiErr.Detail = detail
		return apiErr
	}
	var compact bytes.Buffer
	if json.Compact(&compact, resp.Detail) == nil {
		apiErr.Detail = compact.String()
	}
	return apiErr
}
