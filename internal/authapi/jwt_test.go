// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package authapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestPeekClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"sub": "7", "type": "access", "exp": exp.Unix()})

	c, ok := PeekClaims(tok)
	require.True(t, ok)
	require.Equal(t, "7", c.Subject)
	require.Equal(t, "access", c.Type)
	require.True(t, c.ExpiresAt.Equal(exp))

	got, ok := TokenExpiry(tok)
	require.True(t, ok)
	require.True(t, got.Equal(exp))
}

func TestPeekClaims_ExpiredStillReadable(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signed(t, jwt.MapClaims{"exp": exp.Unix()}))
	require.True(t, ok)
	require.True(t, got.Equal(exp))
}

func TestPeekClaims_Opaque(t *testing.T) {
	_, ok := PeekClaims("not-a-jwt")
	require.False(t, ok)

	_, ok = TokenExpiry(signed(t, jwt.MapClaims{"sub": "1"}))
	require.False(t, ok)
}
