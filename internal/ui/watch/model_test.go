// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabsession/internal/activity"
	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/session"
	"github.com/jeranaias/tabsession/internal/ui/components"
)

type fakeSession struct {
	status    session.Status
	signals   []activity.Signal
	extends   int
	extendErr error
	visible   []bool
}

func (f *fakeSession) Status(context.Context) session.Status { return f.status }
func (f *fakeSession) RecordActivity(s activity.Signal)      { f.signals = append(f.signals, s) }
func (f *fakeSession) SetVisible(v bool)                     { f.visible = append(f.visible, v) }
func (f *fakeSession) ExtendSession(context.Context) error {
	f.extends++
	return f.extendErr
}

func activeSession() *fakeSession {
	return &fakeSession{status: session.Status{
		State:      session.Active,
		Remaining:  2 * time.Hour,
		Threshold:  2 * time.Hour,
		User:       credentials.UserProfile{ID: "42", Email: "ada@example.com", Name: "Ada"},
		Origin:     "tab_1",
		Backend:    "memory",
		RememberMe: false,
	}}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_ViewShowsStatus(t *testing.T) {
	m := New(activeSession(), session.DefaultConfig(), "https://app.example.com/login")
	view := m.View()

	for _, want := range []string{"active", "Ada <ada@example.com>", "2h", "tab_1 (memory)"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_KeysRecordActivity(t *testing.T) {
	sess := activeSession()
	m := New(sess, session.DefaultConfig(), "")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m, _ = update(t, m, tea.MouseMsg{Type: tea.MouseWheelDown})

	require.Equal(t, []activity.Signal{activity.SignalKeyPress, activity.SignalScroll}, sess.signals)
}

func TestModel_WarningOverlayAndExtend(t *testing.T) {
	sess := activeSession()
	m := New(sess, session.DefaultConfig(), "")

	sess.status.State = session.Warning
	sess.status.Remaining = 4*time.Minute + 30*time.Second
	m, cmd := update(t, m, TickMsg{Time: time.Now()})
	require.NotNil(t, cmd, "tick must re-arm")
	require.Contains(t, m.View(), "4:30")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, components.SessionExtendRequestedMsg{}, msg)

	m, cmd = update(t, m, msg)
	require.NotNil(t, cmd)
	result := cmd()
	require.Equal(t, 1, sess.extends)

	sess.status.State = session.Active
	sess.status.Remaining = 2 * time.Hour
	m, _ = update(t, m, result)
	require.Contains(t, m.View(), "Session extended")
	require.NotContains(t, m.View(), "Session Timeout Warning")
}

func TestModel_ExtendFailureIsShown(t *testing.T) {
	sess := activeSession()
	sess.extendErr = errors.New("auth api error (HTTP 500): Failed to extend session")
	m := New(sess, session.DefaultConfig(), "")

	m, _ = update(t, m, extendResultMsg{err: sess.extendErr})
	require.Contains(t, m.View(), "Extend failed")
}

func TestModel_RedirectEndsSession(t *testing.T) {
	sess := activeSession()
	m := New(sess, session.DefaultConfig(), "https://app.example.com/login")

	sess.status = session.Status{State: session.Expired}
	m, _ = update(t, m, RedirectMsg{Reason: session.ReasonTimeout})
	require.Contains(t, m.View(), "Session Ended")

	// Keys no longer count as activity once the session is gone.
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.Empty(t, sess.signals)

	// A sibling login brings the view back.
	sess.status = activeSession().status
	m, _ = update(t, m, ChangeMsg(session.Change{Authenticated: true, State: session.Active, Remote: true}))
	require.NotContains(t, m.View(), "Session Ended")
}

func TestModel_FocusTogglesVisibility(t *testing.T) {
	sess := activeSession()
	m := New(sess, session.DefaultConfig(), "")

	m, _ = update(t, m, BlurMsg{})
	_, _ = update(t, m, FocusMsg{})
	require.Equal(t, []bool{false, true}, sess.visible)
}

func TestModel_Quit(t *testing.T) {
	m := New(activeSession(), session.DefaultConfig(), "")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBridgeDropsBeforeAttach(t *testing.T) {
	var b Bridge
	require.NotPanics(t, func() {
		b.Redirect(session.ReasonTimeout)
		b.OnWarning(time.Minute)
		b.OnActive()
		b.Error("x")
		b.Changed(session.Change{})
	})
}
