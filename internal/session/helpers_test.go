// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/storage"
)

// =============================================================================
// FAKE CLOCK
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// FAKE AUTH API
// =============================================================================

type fakeAPI struct {
	mu sync.Mutex

	meErr      error
	refreshErr error
	refreshTok string
	extendErr  error
	extendPair authapi.TokenPair
	infoErr    error
	user       credentials.UserProfile

	meCalls      int
	refreshCalls int
	extendCalls  int
	logoutCalls  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		refreshTok: "access-refreshed",
		extendPair: authapi.TokenPair{AccessToken: "access-extended", RefreshToken: "refresh-extended"},
		user:       credentials.UserProfile{ID: "42", Email: "ada@example.com", Name: "Ada"},
	}
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*authapi.LoginResponse, error) {
	if password != "secret" {
		return nil, &authapi.APIError{Status: 401, Detail: "Invalid email or password"}
	}
	return &authapi.LoginResponse{
		TokenPair: authapi.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"},
		User:      credentials.UserProfile{ID: "42", Email: email},
	}, nil
}

func (f *fakeAPI) Me(_ context.Context, _ string) (credentials.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	return f.user, f.meErr
}

func (f *fakeAPI) Refresh(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshTok, nil
}

func (f *fakeAPI) Extend(_ context.Context, _ string) (authapi.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extendCalls++
	if f.extendErr != nil {
		return authapi.TokenPair{}, f.extendErr
	}
	return f.extendPair, nil
}

func (f *fakeAPI) SessionInfo(_ context.Context, _ string) (map[string]any, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return map[string]any{"user_id": "42", "device_info": "cli"}, nil
}

func (f *fakeAPI) Logout(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeAPI) set(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) counts() (me, refresh, extend int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls, f.refreshCalls, f.extendCalls
}

var errOffline = errors.Join(authapi.ErrNetwork, errors.New("connection refused"))

// =============================================================================
// RECORDING COLLABORATORS
// =============================================================================

type recorder struct {
	mu        sync.Mutex
	redirects []Reason
	warnings  []time.Duration
	actives   int
	alerts    []string
}

func (r *recorder) Redirect(reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, reason)
}

func (r *recorder) OnWarning(remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, remaining)
}

func (r *recorder) OnActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actives++
}

func (r *recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
}

func (r *recorder) Redirects() []Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reason(nil), r.redirects...)
}

func (r *recorder) Warnings() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.warnings...)
}

func (r *recorder) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	mgr     *Manager
	api     *fakeAPI
	clock   *fakeClock
	rec     *recorder
	store   *credentials.Store
	backend storage.Backend
}

// newHarness builds a manager driven by hand: no timers run and the clock
// only moves when the test advances it.
func newHarness(t *testing.T, backend storage.Backend, clock *fakeClock, tweak func(*Config)) *harness {
	t.Helper()
	if backend == nil {
		backend = storage.NewMemory("tab-a")
	}
	if clock == nil {
		clock = newFakeClock()
	}

	cfg := DefaultConfig()
	cfg.ExternalTick = true
	cfg.CheckFingerprint = false
	if tweak != nil {
		tweak(&cfg)
	}

	h := &harness{
		api:     newFakeAPI(),
		clock:   clock,
		rec:     &recorder{},
		backend: backend,
	}
	h.store = credentials.NewStore(backend, credentials.NewMemoryPreferences(clock.Now), nil, zerolog.Nop())

	mgr, err := NewManager(cfg, Deps{
		Store:     h.store,
		API:       h.api,
		Navigator: h.rec,
		Warnings:  h.rec,
		Alerter:   h.rec,
		Clock:     clock,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h.mgr = mgr

	if err := mgr.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(mgr.Dispose)
	return h
}

func testRecord() credentials.Record {
	return credentials.Record{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         credentials.UserProfile{ID: "42", Email: "ada@example.com", Name: "Ada"},
	}
}

func (h *harness) login(t *testing.T, rememberMe bool) {
	t.Helper()
	if err := h.mgr.StartSession(context.Background(), testRecord(), rememberMe); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
}

func (h *harness) stored(t *testing.T) (credentials.Record, bool) {
	t.Helper()
	return h.store.Read(context.Background())
}
