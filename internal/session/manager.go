// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jeranaias/tabsession/internal/activity"
	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/crosstab"
	"github.com/jeranaias/tabsession/internal/fingerprint"
	"github.com/jeranaias/tabsession/internal/telemetry"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Deps are the manager's collaborators. Store and API are required.
type Deps struct {
	Store *credentials.Store
	API   AuthAPI

	// Notifier watches sibling tabs. Built over Store.Backend() when nil.
	Notifier *crosstab.Notifier

	// Fingerprint runs the soft device check. Optional.
	Fingerprint *fingerprint.Checker

	Navigator Navigator
	Warnings  WarningListener
	Alerter   Alerter
	Clock     Clock
	Metrics   *telemetry.Metrics
	Log       zerolog.Logger
}

// Change is the local "session changed" signal. Remote is set when the
// change was made by a sibling tab.
type Change struct {
	Authenticated bool
	State         State
	Reason        Reason
	Remote        bool
}

// Manager owns one tab's session: its inactivity monitor, the periodic
// validity check, the refresh protocol and the reaction to sibling tabs.
// Construct with NewManager, then Init; Dispose releases every timer.
type Manager struct {
	cfg      Config
	store    *credentials.Store
	api      AuthAPI
	notifier *crosstab.Notifier
	checker  *fingerprint.Checker
	nav      Navigator
	warnings WarningListener
	alerter  Alerter
	clock    Clock
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	tracker *activity.Tracker
	monitor *Monitor
	changes *crosstab.Subscribers[Change]

	refreshes singleflight.Group
	limiter   *rate.Limiter

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	validityCancel context.CancelFunc
	visible        bool
	initialized    bool
	disposed       bool
	unsubscribe    func()
	refreshSeen    string
	wg             sync.WaitGroup
}

// NewManager wires a manager. It starts nothing until Init.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("session manager requires a credential store")
	}
	if deps.API == nil {
		return nil, fmt.Errorf("session manager requires an auth API")
	}

	cfg = cfg.withDefaults()
	log := deps.Log.With().Str("component", "session").Logger()

	m := &Manager{
		cfg:      cfg,
		store:    deps.Store,
		api:      deps.API,
		notifier: deps.Notifier,
		checker:  deps.Fingerprint,
		nav:      deps.Navigator,
		warnings: deps.Warnings,
		alerter:  deps.Alerter,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		log:      log,
		visible:  true,
	}
	if m.nav == nil {
		m.nav = nopNavigator{}
	}
	if m.warnings == nil {
		m.warnings = nopWarnings{}
	}
	if m.alerter == nil {
		m.alerter = nopAlerter{}
	}
	if m.clock == nil {
		m.clock = ClockFunc(time.Now)
	}
	if m.notifier == nil && deps.Store.Backend() != nil {
		m.notifier = crosstab.NewNotifier(deps.Store.Backend(), deps.Log)
	}
	deps.Store.SetClock(m.clock.Now)

	limit := rate.Inf
	if cfg.RefreshMinInterval > 0 {
		limit = rate.Every(cfg.RefreshMinInterval)
	}
	m.limiter = rate.NewLimiter(limit, 1)

	m.changes = crosstab.NewSubscribers[Change](log)
	m.tracker = activity.NewTracker(m.clock.Now)
	m.monitor = newMonitor(cfg, m.tracker, monitorHooks{
		transition: m.onTransition,
		warning:    m.warnings.OnWarning,
		active:     m.warnings.OnActive,
		expired:    m.onExpired,
	}, log)

	return m, nil
}

// Init loads any stored session, starts its timers and begins listening to
// sibling tabs. Calling Init again is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if !m.store.Available() {
		m.log.Warn().
			Err(ErrStorageUnavailable).
			Str("event", "STORAGE_UNAVAILABLE").
			Msg("session storage unavailable, sessions will not persist")
		m.metrics.StorageError()
	}

	if m.notifier != nil {
		unsubscribe := m.notifier.Subscribe(m.handleRemote)
		if err := m.notifier.Start(m.ctx); err != nil && !errors.Is(err, crosstab.ErrStarted) {
			m.log.Warn().Err(err).Msg("cross-tab sync unavailable")
		}
		m.mu.Lock()
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	}

	rec, ok := m.store.Read(ctx)
	if !ok {
		return nil
	}

	m.monitor.Begin(m.ctx, rec.RememberMe)
	m.noteRefreshToken(rec.RefreshToken)
	m.checkDevice(ctx)
	m.startValidity()
	m.log.Info().
		Str("event", "SESSION_RESTORED").
		Str("user", rec.User.ID).
		Bool("remember_me", rec.RememberMe).
		Msg("session restored from storage")
	m.publish(Change{Authenticated: true, State: Active})
	return nil
}

// Dispose stops every timer and the cross-tab listener. The stored session
// is left in place for the next Init. Dispose is idempotent.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	cancel := m.cancel
	unsubscribe := m.unsubscribe
	if m.validityCancel != nil {
		m.validityCancel()
		m.validityCancel = nil
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.monitor.disarm()
	if m.notifier != nil {
		m.notifier.Close()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	m.monitor.wait()
	m.wg.Wait()
}

func (m *Manager) rootContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// =============================================================================
// SESSION ENTRY / EXIT
// =============================================================================

// Login authenticates with email and password and starts the session.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) error {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return m.StartSession(ctx, credentials.Record{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, rememberMe)
}

// CompleteOAuth finishes an OAuth redirect. The callback URL carries the
// tokens in its query; the profile is fetched with the access token.
func (m *Manager) CompleteOAuth(ctx context.Context, callbackURL string, rememberMe bool) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("oauth provider returned error: %s", e)
	}

	access := q.Get("token")
	if access == "" {
		access = q.Get("access_token")
	}
	if access == "" {
		return fmt.Errorf("callback URL carries no access token")
	}

	user, err := m.api.Me(ctx, access)
	if err != nil {
		return fmt.Errorf("failed to load user profile: %w", err)
	}
	return m.StartSession(ctx, credentials.Record{
		AccessToken:  access,
		RefreshToken: q.Get("refresh_token"),
		User:         user,
	}, rememberMe)
}

// StartSession saves rec and makes this tab Active. Sibling tabs adopt the
// session when they see the write.
func (m *Manager) StartSession(ctx context.Context, rec credentials.Record, rememberMe bool) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	if err := m.store.Save(ctx, rec, rememberMe); err != nil {
		m.metrics.StorageError()
		return err
	}

	m.monitor.Begin(m.rootContext(), rememberMe)
	m.noteRefreshToken(rec.RefreshToken)
	m.startValidity()
	if err := m.store.SetState(ctx, Active.String()); err != nil {
		m.log.Debug().Err(err).Msg("failed to publish session state")
	}

	m.log.Info().
		Str("event", "SESSION_STARTED").
		Str("user", rec.User.ID).
		Bool("remember_me", rememberMe).
		Msg("session started")
	m.publish(Change{Authenticated: true, State: Active})
	return nil
}

// Logout ends the session in every tab. The server-side revoke is
// best-effort; local credentials are always cleared. No redirect happens in
// this tab since the user asked for it; siblings are redirected.
func (m *Manager) Logout(ctx context.Context) error {
	if rec, ok := m.store.Read(ctx); ok && rec.RefreshToken != "" {
		if err := m.api.Logout(ctx, rec.RefreshToken); err != nil {
			m.log.Debug().Err(err).Msg("server logout failed")
		}
	}

	m.monitor.End(Unauthenticated)
	m.stopValidity()
	err := m.store.Clear(ctx)
	if err != nil {
		m.metrics.StorageError()
	}

	m.log.Info().Str("event", "SESSION_LOGOUT").Msg("user logged out")
	m.publish(Change{Authenticated: false, State: Unauthenticated})
	return err
}

// =============================================================================
// ACTIVITY
// =============================================================================

// RecordActivity notes a user interaction. In Warning it returns the tab to
// Active at once.
func (m *Manager) RecordActivity(s activity.Signal) {
	if !m.monitor.State().IsAuthenticated() {
		return
	}
	m.monitor.Touch(s)
}

// Tick evaluates the inactivity state machine once. Hosts running with
// ExternalTick call it from their own loop; it is harmless otherwise.
func (m *Manager) Tick() {
	m.monitor.Tick()
}

// State returns the tab's state.
func (m *Manager) State() State {
	return m.monitor.State()
}

// Remaining returns the time until inactivity expiry.
func (m *Manager) Remaining() time.Duration {
	return m.monitor.Remaining()
}

// Subscribe registers fn for local session changes, including those caused
// by sibling tabs.
func (m *Manager) Subscribe(fn func(Change)) (unsubscribe func()) {
	return m.changes.Subscribe(fn)
}

func (m *Manager) publish(c Change) {
	m.changes.Publish(c)
}

func (m *Manager) isDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// =============================================================================
// VALIDITY / REFRESH PROTOCOL
// =============================================================================

// CheckValidity asks the server whether the access token is still good. A
// 401 triggers Refresh. Network and server failures return false without
// ending the session; the caller must not assume validity.
func (m *Manager) CheckValidity(ctx context.Context) bool {
	rec, ok := m.store.Read(ctx)
	if !ok {
		return false
	}

	if exp, ok := authapi.TokenExpiry(rec.AccessToken); ok && exp.Sub(m.clock.Now()) <= m.cfg.RefreshSkew {
		m.log.Debug().Time("exp", exp).Msg("access token near expiry, refreshing")
		err := m.exchange(ctx)
		var unreachable *unreachableError
		if errors.As(err, &unreachable) {
			// The token is still usable until exp; the next check retries.
			m.log.Debug().Err(unreachable.err).Msg("proactive refresh deferred, server unreachable")
			return false
		}
		return err == nil
	}

	_, err := m.api.Me(ctx, rec.AccessToken)
	switch {
	case err == nil:
		return true
	case errors.Is(err, authapi.ErrUnauthorized):
		return m.Refresh(ctx) == nil
	default:
		m.log.Debug().Err(err).Msg("validity check inconclusive")
		return false
	}
}

// Refresh exchanges the refresh token for a new access token. Every failure
// is fatal: the session is cleared and the user redirected. Concurrent
// calls share one exchange.
func (m *Manager) Refresh(ctx context.Context) error {
	err := m.exchange(ctx)
	var unreachable *unreachableError
	if !errors.As(err, &unreachable) {
		return err
	}
	if m.endSession(ReasonTimeout, "REFRESH_FAILED", unreachable.err) {
		m.alerter.Error("Could not reach the server to refresh your session")
	}
	return unreachable.err
}

// unreachableError marks an exchange that never reached the server. The
// caller decides whether that ends the session.
type unreachableError struct{ err error }

func (e *unreachableError) Error() string { return e.err.Error() }
func (e *unreachableError) Unwrap() error { return e.err }

// exchange runs one shared refresh. A missing or rejected refresh token ends
// the session here; a transport failure is returned as *unreachableError.
func (m *Manager) exchange(ctx context.Context) error {
	_, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	rec, ok := m.store.Read(ctx)
	if !ok {
		return ErrNoSession
	}

	if rec.RefreshToken == "" {
		m.metrics.TokenOp("refresh", "no_token")
		m.alerter.Error(ErrNoRefreshToken.Error())
		m.endSession(ReasonTimeout, "REFRESH_NO_TOKEN", ErrNoRefreshToken)
		return ErrNoRefreshToken
	}

	access, err := m.api.Refresh(ctx, rec.RefreshToken)
	if err == nil {
		if err := m.store.UpdateAccessToken(ctx, access); err != nil {
			m.metrics.StorageError()
			return fmt.Errorf("failed to store refreshed token: %w", err)
		}
		m.metrics.TokenOp("refresh", "ok")
		m.log.Debug().Msg("access token refreshed")
		return nil
	}

	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) {
		rejected := &RefreshRejectedError{Detail: apiErr.Detail, Security: apiErr.Security(), Err: err}
		m.metrics.TokenOp("refresh", "rejected")
		msg := apiErr.Detail
		if msg == "" {
			msg = "Session refresh failed, please log in again"
		}
		m.alerter.Error(msg)
		m.endSession(rejected.Reason(), "REFRESH_REJECTED", rejected)
		return rejected
	}

	m.metrics.TokenOp("refresh", "network")
	return &unreachableError{err: err}
}

// HandleUnauthorized is the reactive entry point for collaborators that got
// a 401. A burst of 401s causes a single refresh; calls inside the limit
// window return nil and the caller retries with the current token.
func (m *Manager) HandleUnauthorized(ctx context.Context) error {
	if !m.monitor.State().IsAuthenticated() {
		return ErrNoSession
	}
	if !m.limiter.Allow() {
		m.log.Debug().Msg("refresh suppressed by rate limit")
		return nil
	}
	return m.Refresh(ctx)
}

// AccessToken returns the stored access token for collaborator requests.
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	rec, ok := m.store.Read(ctx)
	if !ok {
		return "", false
	}
	return rec.AccessToken, true
}

// ExtendSession trades the access token for a fresh pair and resets the
// inactivity timer. A failure is shown to the user and changes nothing.
func (m *Manager) ExtendSession(ctx context.Context) error {
	if m.monitor.State() == Expired {
		return ErrExpired
	}
	rec, ok := m.store.Read(ctx)
	if !ok {
		return ErrNoSession
	}

	pair, err := m.api.Extend(ctx, rec.AccessToken)
	if err != nil {
		m.metrics.TokenOp("extend", outcomeOf(err))
		m.alerter.Error("Failed to extend session")
		m.log.Warn().Err(err).Msg("session extend failed")
		return err
	}

	if err := m.store.UpdateTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		m.metrics.StorageError()
		m.alerter.Error("Failed to extend session")
		return fmt.Errorf("failed to store extended tokens: %w", err)
	}

	m.noteRefreshToken(pair.RefreshToken)
	m.monitor.Extend()
	m.metrics.TokenOp("extend", "ok")
	m.log.Info().Str("event", "SESSION_EXTENDED").Msg("session extended")
	return nil
}

// SessionInfo returns the server's metadata for the session, or false.
func (m *Manager) SessionInfo(ctx context.Context) (map[string]any, bool) {
	rec, ok := m.store.Read(ctx)
	if !ok {
		return nil, false
	}
	info, err := m.api.SessionInfo(ctx, rec.AccessToken)
	if err != nil {
		m.log.Debug().Err(err).Msg("session info unavailable")
		return nil, false
	}
	return info, true
}

func outcomeOf(err error) string {
	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) {
		return "rejected"
	}
	return "network"
}

// =============================================================================
// VALIDITY LOOP
// =============================================================================

// SetVisible pauses the periodic validity check while the host is hidden and
// resumes it, checking at once, when it returns. Inactivity enforcement is
// not affected.
func (m *Manager) SetVisible(visible bool) {
	m.mu.Lock()
	changed := m.visible != visible
	m.visible = visible
	m.mu.Unlock()

	if !changed {
		return
	}
	if !visible {
		m.stopValidity()
		return
	}
	if m.monitor.State().IsAuthenticated() {
		m.startValidity()
	}
}

// startValidity arms the validity loop, cancelling any previous one. The
// first check runs immediately.
func (m *Manager) startValidity() {
	if m.cfg.ExternalTick {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validityCancel != nil {
		m.validityCancel()
		m.validityCancel = nil
	}
	if m.disposed || !m.visible || m.ctx == nil {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.validityCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.validityLoop(ctx)
	}()
}

func (m *Manager) validityLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ValidityInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		if !m.CheckValidity(ctx) {
			m.log.Debug().Msg("periodic validity check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) stopValidity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validityCancel != nil {
		m.validityCancel()
		m.validityCancel = nil
	}
}

// =============================================================================
// SESSION END
// =============================================================================

// endSession is the fatal path for refresh failures. The monitor's End
// result guarantees one redirect per session; a tab that was not
// authenticated only has its stale record cleared. It reports whether this
// call ended the session.
func (m *Manager) endSession(reason Reason, event string, cause error) bool {
	if !m.monitor.End(Expired) {
		if err := m.store.Clear(context.WithoutCancel(m.rootContext())); err != nil {
			m.metrics.StorageError()
		}
		return false
	}
	m.finish(reason, event, cause)
	return true
}

// onExpired runs when the monitor's tick reaches Expired.
func (m *Manager) onExpired() {
	m.finish(ReasonTimeout, "SESSION_EXPIRED", ErrExpired)
}

func (m *Manager) finish(reason Reason, event string, cause error) {
	m.stopValidity()

	ctx := context.WithoutCancel(m.rootContext())
	if err := m.store.Clear(ctx); err != nil {
		m.metrics.StorageError()
		m.log.Error().Err(err).Msg("failed to clear session")
	}

	m.log.Warn().
		Err(cause).
		Str("event", event).
		Str("reason", string(reason)).
		Msg("session ended")

	m.metrics.Redirect(string(reason))
	m.nav.Redirect(reason)
	m.publish(Change{Authenticated: false, State: Expired, Reason: reason})
}

func (m *Manager) onTransition(from, to State) {
	m.metrics.Transition(from.String(), to.String(), int(to))
	m.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("session state changed")
}

// checkDevice runs the soft fingerprint check. A mismatch is logged only.
func (m *Manager) checkDevice(ctx context.Context) {
	if !m.cfg.CheckFingerprint || m.checker == nil {
		return
	}
	result := m.checker.Validate(ctx)
	m.metrics.FingerprintCheck(result.String())
}

// =============================================================================
// CROSS-TAB
// =============================================================================

// handleRemote reacts to a sibling tab's write to the shared store.
func (m *Manager) handleRemote(ev crosstab.Event) {
	if !credentials.IsRecordKey(ev.Key) {
		return
	}
	m.metrics.CrossTabEvent(ev.Key)

	// The access token is written last by every save, so its arrival is
	// the point at which a sibling's change is complete.
	switch ev.Key {
	case credentials.KeyAccessToken:
		if ev.Removed {
			m.remoteLogout(ev)
			return
		}
		m.remoteLogin(ev)
	case credentials.KeyRememberMe:
		if ev.Removed || !m.monitor.State().IsAuthenticated() {
			return
		}
		if rec, ok := m.store.Read(m.rootContext()); ok {
			m.syncThreshold(ev, rec.RememberMe)
		}
	}
}

func (m *Manager) remoteLogout(ev crosstab.Event) {
	if !m.monitor.End(Unauthenticated) {
		return
	}
	m.stopValidity()
	m.log.Info().
		Str("event", "SESSION_ENDED_REMOTE").
		Str("origin", ev.Origin).
		Msg("session ended in another tab")
	m.metrics.Redirect(string(ReasonExpired))
	m.nav.Redirect(ReasonExpired)
	m.publish(Change{Authenticated: false, State: Unauthenticated, Reason: ReasonExpired, Remote: true})
}

func (m *Manager) remoteLogin(ev crosstab.Event) {
	ctx := m.rootContext()
	rec, ok := m.store.Read(ctx)
	if !ok {
		return
	}
	if m.monitor.State().IsAuthenticated() {
		m.syncRemote(ev, rec)
		return
	}

	m.monitor.Begin(ctx, rec.RememberMe)
	m.noteRefreshToken(rec.RefreshToken)
	m.startValidity()
	m.log.Info().
		Str("event", "SESSION_ADOPTED").
		Str("origin", ev.Origin).
		Str("user", rec.User.ID).
		Msg("session started in another tab")
	m.publish(Change{Authenticated: true, State: Active, Remote: true})
}

// syncRemote applies a sibling's committed write to an authenticated tab. A
// refresh token this tab has not seen means the sibling extended or logged
// in again, and inactivity restarts here as well. A plain refresh replaces
// only the access token and leaves the timer alone.
func (m *Manager) syncRemote(ev crosstab.Event, rec credentials.Record) {
	m.syncThreshold(ev, rec.RememberMe)

	m.mu.Lock()
	renewed := rec.RefreshToken != m.refreshSeen
	m.refreshSeen = rec.RefreshToken
	m.mu.Unlock()

	if renewed {
		m.monitor.Extend()
		m.log.Debug().Str("origin", ev.Origin).Msg("session renewed in another tab")
	}
}

func (m *Manager) syncThreshold(ev crosstab.Event, rememberMe bool) {
	if !m.monitor.SetRememberMe(rememberMe) {
		return
	}
	m.log.Info().
		Str("event", "SESSION_THRESHOLD_CHANGED").
		Str("origin", ev.Origin).
		Bool("remember_me", rememberMe).
		Dur("threshold", m.monitor.Threshold()).
		Msg("inactivity threshold changed in another tab")
}

func (m *Manager) noteRefreshToken(token string) {
	m.mu.Lock()
	m.refreshSeen = token
	m.mu.Unlock()
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a snapshot for display.
type Status struct {
	State       State
	Remaining   time.Duration
	Idle        time.Duration
	Threshold   time.Duration
	RememberMe  bool
	User        credentials.UserProfile
	TokenExpiry time.Time
	LastSignal  activity.Signal
	Origin      string
	Backend     string
}

// Status returns the current session status.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{
		State:      m.monitor.State(),
		Remaining:  m.monitor.Remaining(),
		Threshold:  m.monitor.Threshold(),
		RememberMe: m.monitor.RememberMe(),
		LastSignal: m.tracker.LastSignal(),
	}
	if st.State.IsAuthenticated() {
		st.Idle = m.tracker.Idle()
	}
	if b := m.store.Backend(); b != nil {
		st.Origin = b.Origin()
		st.Backend = b.Name()
	}
	if rec, ok := m.store.Read(ctx); ok {
		st.User = rec.User
		if exp, ok := authapi.TokenExpiry(rec.AccessToken); ok {
			st.TokenExpiry = exp
		}
		if !st.State.IsAuthenticated() {
			st.RememberMe = rec.RememberMe
		}
	}
	return st
}
