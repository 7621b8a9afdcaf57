// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package authapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims peeked from a token without verifying it. The signature belongs to
// the server; the client only uses these to schedule refreshes and display
// status.
type Claims struct {
	Subject   string
	Type      string
	ExpiresAt time.Time
}

// PeekClaims decodes a JWT without verifying it. Opaque tokens return false.
func PeekClaims(token string) (Claims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, false
	}

	var out Claims
	out.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if typ, ok := claims["type"].(string); ok {
		out.Type = typ
	}
	return out, true
}

// TokenExpiry returns the exp claim of a JWT, if it has one.
func TokenExpiry(token string) (time.Time, bool) {
	c, ok := PeekClaims(token)
	if !ok || c.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return c.ExpiresAt, true
}
