// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabsession/internal/config"
	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/storage"
)

// =============================================================================
// FAKE AUTH SERVER
// =============================================================================

type authServer struct {
	*httptest.Server

	mu             sync.Mutex
	accessTTL      time.Duration
	refreshRevoked bool
	issued         int
	lastAccess     string
	valid          map[string]bool
	refreshes      int
	extends        int
	logouts        int
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	s := &authServer{accessTTL: 15 * time.Minute, valid: make(map[string]bool)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// mint must be called with s.mu held.
func (s *authServer) mint() string {
	s.issued++
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "42",
		"type": "access",
		"jti":  fmt.Sprintf("t%d", s.issued),
		"exp":  time.Now().Add(s.accessTTL).Unix(),
	}).SignedString([]byte("server-secret"))
	if err != nil {
		panic(err)
	}
	s.valid[tok] = true
	s.lastAccess = tok
	return tok
}

func (s *authServer) set(fn func(s *authServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *authServer) snapshot() (refreshes, extends, logouts int, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes, s.extends, s.logouts, s.lastAccess
}

func (s *authServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	user := map[string]any{"id": 42, "email": "ada@example.com", "name": "Ada"}

	switch r.URL.Path {
	case "/auth/login":
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  s.mint(),
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"user":          user,
		})

	case "/auth/me":
		if !s.valid[bearer] {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		writeJSON(w, http.StatusOK, user)

	case "/auth/refresh":
		s.refreshes++
		if s.refreshRevoked {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Refresh token revoked"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": s.mint()})

	case "/auth/session/extend":
		if !s.valid[bearer] {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		s.extends++
		writeJSON(w, http.StatusOK, map[string]string{"access_token": s.mint(), "refresh_token": "refresh-2"})

	case "/auth/session/info":
		if !s.valid[bearer] {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": "s-1", "user_id": 42})

	case "/auth/logout":
		s.logouts++
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// RUNNER HARNESS
// =============================================================================

type stubPrompter struct {
	email    string
	password string
}

func (p stubPrompter) Email() (string, error)    { return p.email, nil }
func (p stubPrompter) Password() (string, error) { return p.password, nil }

type cliHarness struct {
	runner *Runner
	srv    *authServer
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// newCLIHarness returns a runner whose every invocation is a new tab on one
// in-memory profile, talking to a fake auth server.
func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	srv := newAuthServer(t)

	base := config.Default()
	base.API.BaseURL = srv.URL
	base.Storage.Backend = storage.KindMemory
	base.Log.Level = "off"

	profile := storage.NewProfile()
	prefs := credentials.NewMemoryPreferences(nil)

	h := &cliHarness{srv: srv, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	h.runner = NewRunner(Streams{In: strings.NewReader(""), Out: h.out, Err: h.errOut})
	h.runner.Prompter = stubPrompter{email: "ada@example.com", password: "secret"}
	h.runner.loadConfig = func(args Args) (*config.Config, error) {
		cfg := *base
		applyFlagOverrides(&cfg, args)
		return &cfg, nil
	}
	h.runner.opts = envOptions{
		openBackend: func() storage.Backend { return profile.Open("") },
		prefs:       prefs,
	}
	return h
}

func (h *cliHarness) run(argv ...string) error {
	h.out.Reset()
	h.errOut.Reset()
	cmd, args := Parse(argv)
	return h.runner.Run(context.Background(), cmd, args)
}

// runJSON runs argv with --json and decodes the envelope.
func (h *cliHarness) runJSON(t *testing.T, argv ...string) map[string]any {
	t.Helper()
	require.NoError(t, h.run(append(argv, "--json")...))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &resp), h.out.String())
	require.Equal(t, true, resp["success"])
	data, _ := resp["data"].(map[string]any)
	return data
}
