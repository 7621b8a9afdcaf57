// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tabsession/internal/activity"
	"github.com/jeranaias/tabsession/internal/session"
	"github.com/jeranaias/tabsession/internal/ui/components"
	"github.com/jeranaias/tabsession/internal/ui/styles"
	"github.com/jeranaias/tabsession/internal/util"
)

// Session is the part of *session.Manager the watch view drives.
type Session interface {
	Status(ctx context.Context) session.Status
	RecordActivity(s activity.Signal)
	ExtendSession(ctx context.Context) error
	SetVisible(visible bool)
}

var _ Session = (*session.Manager)(nil)

// =============================================================================
// MESSAGES
// =============================================================================

// TickMsg is sent every refresh interval.
type TickMsg struct {
	Time time.Time
}

// WarningMsg carries the countdown from the manager's warning listener.
type WarningMsg struct {
	Remaining time.Duration
}

// ActiveMsg signals the warning was dismissed.
type ActiveMsg struct{}

// RedirectMsg signals the session ended and the user must log in again.
type RedirectMsg struct {
	Reason session.Reason
}

// AlertMsg is a user-visible failure from the refresh or extend flow.
type AlertMsg struct {
	Text string
}

// ChangeMsg forwards the manager's session-changed signal.
type ChangeMsg session.Change

type extendResultMsg struct {
	err error
}

// TickCmd returns a command that ticks after interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge adapts the manager's collaborator interfaces to Bubble Tea
// messages. Messages sent before Attach are dropped.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// Attach starts forwarding to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = p.Send
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// Redirect implements session.Navigator.
func (b *Bridge) Redirect(reason session.Reason) { b.post(RedirectMsg{Reason: reason}) }

// OnWarning implements session.WarningListener.
func (b *Bridge) OnWarning(remaining time.Duration) { b.post(WarningMsg{Remaining: remaining}) }

// OnActive implements session.WarningListener.
func (b *Bridge) OnActive() { b.post(ActiveMsg{}) }

// Error implements session.Alerter.
func (b *Bridge) Error(msg string) { b.post(AlertMsg{Text: msg}) }

// Changed forwards a session change; pass it to Manager.Subscribe.
func (b *Bridge) Changed(c session.Change) { b.post(ChangeMsg(c)) }

// =============================================================================
// MODEL
// =============================================================================

// Model is the watch view: live session status, the warning overlay and
// extension on demand.
type Model struct {
	sess     Session
	keys     KeyMap
	help     help.Model
	overlay  components.SessionTimeoutOverlay
	interval time.Duration
	loginURL string

	status  session.Status
	alert   string
	notice  string
	ended   session.Reason
	width   int
	height  int
	showAll bool
}

// New creates the watch model. loginURL is shown after the session ends.
func New(sess Session, cfg session.Config, loginURL string) Model {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		sess:     sess,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		overlay:  components.NewSessionTimeoutOverlay(cfg.WarningLead),
		interval: interval,
		loginURL: loginURL,
		status:   sess.Status(context.Background()),
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return TickCmd(m.interval)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.overlay.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Help) {
			m.showAll = !m.showAll
			m.help.ShowAll = m.showAll
			return m, nil
		}
		if m.ended != "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.overlay, cmd = m.overlay.Update(msg)
		if cmd == nil && key.Matches(msg, m.keys.Extend) {
			cmd = func() tea.Msg { return components.SessionExtendRequestedMsg{} }
		}
		m.sess.RecordActivity(activity.SignalKeyPress)
		return m.refresh(), cmd

	case tea.MouseMsg:
		if m.ended == "" {
			m.sess.RecordActivity(mouseSignal(msg))
		}
		return m.refresh(), nil

	case FocusMsg:
		m.sess.SetVisible(true)
		return m, nil

	case BlurMsg:
		m.sess.SetVisible(false)
		return m, nil

	case TickMsg:
		return m.refresh(), TickCmd(m.interval)

	case WarningMsg:
		m.overlay.Show(msg.Remaining)
		return m, nil

	case ActiveMsg:
		if m.ended == "" {
			m.overlay.Hide()
		}
		return m.refresh(), nil

	case RedirectMsg:
		m.ended = msg.Reason
		m.overlay.ShowExpired(string(msg.Reason))
		return m.refresh(), nil

	case AlertMsg:
		m.alert = msg.Text
		m.notice = ""
		return m, nil

	case ChangeMsg:
		if msg.Authenticated {
			// A sibling logged in again.
			m.ended = ""
			m.overlay.Hide()
		}
		return m.refresh(), nil

	case components.SessionExtendRequestedMsg:
		sess := m.sess
		return m, func() tea.Msg {
			return extendResultMsg{err: sess.ExtendSession(context.Background())}
		}

	case extendResultMsg:
		if msg.err != nil {
			m.alert = "Extend failed: " + msg.err.Error()
			m.notice = ""
		} else {
			m.alert = ""
			m.notice = "Session extended"
			m.overlay.Hide()
		}
		return m.refresh(), nil
	}

	return m, nil
}

// refresh re-reads the status and keeps the overlay in step with it.
func (m Model) refresh() Model {
	m.status = m.sess.Status(context.Background())
	if m.ended != "" {
		return m
	}
	switch m.status.State {
	case session.Warning:
		m.overlay.Show(m.status.Remaining)
	case session.Active:
		m.overlay.Hide()
	}
	return m
}

func mouseSignal(msg tea.MouseMsg) activity.Signal {
	switch msg.Type {
	case tea.MouseWheelUp, tea.MouseWheelDown:
		return activity.SignalScroll
	case tea.MouseMotion:
		return activity.SignalMouseMove
	default:
		return activity.SignalMouseDown
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the model.
func (m Model) View() string {
	if m.overlay.IsVisible() {
		return m.overlay.View() + "\n" + m.footer()
	}
	return m.body() + "\n" + m.footer()
}

func (m Model) body() string {
	st := m.status
	label := lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(14)
	value := lipgloss.NewStyle().Foreground(styles.TextPrimary)
	state := lipgloss.NewStyle().Foreground(styles.StateColor(st.State.String())).Bold(true)

	valueWidth := m.width - 16
	if valueWidth < 20 {
		valueWidth = 48
	}

	row := func(name, v string) string {
		return label.Render(name) + value.Render(util.TruncateWidth(v, valueWidth))
	}

	var b strings.Builder
	title := lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	b.WriteString(title.Render("tabsession") + "\n\n")
	b.WriteString(label.Render("State") + state.Render(st.State.String()) + "\n")

	if st.User.ID != "" || st.User.Email != "" {
		user := st.User.Email
		if st.User.Name != "" {
			user = st.User.Name + " <" + st.User.Email + ">"
		}
		b.WriteString(row("User", user) + "\n")
	}
	if st.State.IsAuthenticated() {
		b.WriteString(row("Expires in", session.FormatDuration(st.Remaining)) + "\n")
		b.WriteString(row("Idle", session.FormatDuration(st.Idle)) + "\n")
		b.WriteString(row("Timeout", fmt.Sprintf("%s (remember me: %v)", session.FormatDuration(st.Threshold), st.RememberMe)) + "\n")
	}
	if !st.TokenExpiry.IsZero() {
		b.WriteString(row("Token exp", st.TokenExpiry.Local().Format(time.Kitchen)) + "\n")
	}
	if st.Origin != "" {
		b.WriteString(row("Tab", st.Origin+" ("+st.Backend+")") + "\n")
	}

	if m.ended != "" {
		b.WriteString("\n" + styles.RenderError("Session ended: "+string(m.ended)) + "\n")
		if m.loginURL != "" {
			b.WriteString(row("Log in at", session.LoginURL(m.loginURL, m.ended)) + "\n")
		}
	}
	if m.alert != "" {
		b.WriteString("\n" + styles.RenderError(m.alert) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + styles.RenderSuccess(m.notice) + "\n")
	}
	return b.String()
}

func (m Model) footer() string {
	return m.help.View(m.keys)
}
