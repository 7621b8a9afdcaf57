// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/session"
	"github.com/jeranaias/tabsession/internal/telemetry"
)

func fixedStatus(st session.Status) StatusFunc {
	return func(context.Context) session.Status { return st }
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)
	m.TokenOp("refresh", "ok")

	return New("", fixedStatus(session.Status{
		State:       session.Warning,
		Remaining:   90 * time.Second,
		Threshold:   2 * time.Hour,
		User:        credentials.UserProfile{ID: "42", Email: "ada@example.com"},
		TokenExpiry: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Origin:      "https://app.example.com",
		Backend:     "memory",
	}), reg, zerolog.Nop())
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func TestServer_Health(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestServer_Status(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "warning", body.State)
	require.True(t, body.Authenticated)
	require.EqualValues(t, 90, body.RemainingSeconds)
	require.EqualValues(t, 7200, body.TimeoutSeconds)
	require.Equal(t, "2030-01-02T03:04:05Z", body.TokenExpiry)
	require.Equal(t, "ada@example.com", body.Email)
	require.NotContains(t, rec.Body.String(), "token\":\"ey")
}

func TestServer_StatusWithoutSession(t *testing.T) {
	s := New("", nil, nil, zerolog.Nop())
	rec := get(t, s.Handler(), "/status", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, s.Handler(), "/metrics", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `tabsession_token_operations_total{op="refresh",outcome="ok"} 1`)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	newTestServer(t).Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestBearerAuth(t *testing.T) {
	h := newTestServer(t).WithToken("s3cret").Handler()

	tests := []struct {
		path  string
		token string
		want  int
	}{
		{"/status", "", http.StatusUnauthorized},
		{"/status", "wrong", http.StatusUnauthorized},
		{"/status", "s3cret", http.StatusOK},
		{"/metrics", "", http.StatusUnauthorized},
		{"/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.token, func(t *testing.T) {
			if got := get(t, h, tt.path, tt.token).Code; got != tt.want {
				t.Errorf("GET %s with %q = %d, want %d", tt.path, tt.token, got, tt.want)
			}
		})
	}
}

func TestValidateBearerToken(t *testing.T) {
	require.True(t, ValidateBearerToken("abc", "abc"))
	require.False(t, ValidateBearerToken("abd", "abc"))
	require.False(t, ValidateBearerToken("", ""))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := get(t, h, "/", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	get(t, h, "/", "")
	require.Equal(t, []string{"a", "b", "c"}, order)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestServer_ServeAndShutdown(t *testing.T) {
	s := New("127.0.0.1:0", fixedStatus(session.Status{State: session.Unauthenticated}), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(s.Addr(), ":0")
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), `"state":"unauthenticated"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
