// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authapi is the HTTP client for the backend's /auth endpoints.
//
// The client is deliberately thin: it maps responses to Go values and
// errors and leaves every session decision to the caller.
//
// # Endpoints
//
//   - POST /auth/login           {email, password} -> tokens + user
//   - GET  /auth/me              bearer -> user | 401
//   - POST /auth/refresh         {refresh_token} -> {access_token} | 4xx {detail}
//   - POST /auth/session/extend  bearer -> {access_token, refresh_token}
//   - GET  /auth/session/info    bearer -> metadata
//   - POST /auth/logout          {refresh_token}, best effort
//
// # Errors
//
// Transport failures wrap ErrNetwork. Non-2xx responses are returned as
// *APIError; a 401 additionally matches ErrUnauthorized with errors.Is.
package authapi
