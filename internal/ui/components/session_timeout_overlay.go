// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tabsession/internal/ui/styles"
)

// =============================================================================
// SESSION TIMEOUT OVERLAY
// =============================================================================

// SessionTimeoutOverlay shows the expiry countdown while the session is in
// Warning, and the reason once it has ended.
type SessionTimeoutOverlay struct {
	// State
	visible       bool
	timeRemaining time.Duration
	expired       bool
	reason        string

	// Configuration
	warningLead time.Duration
	extendKey   key.Binding

	bar progress.Model

	// Dimensions
	width  int
	height int
}

// NewSessionTimeoutOverlay creates a hidden overlay for a warning window of
// lead.
func NewSessionTimeoutOverlay(lead time.Duration) SessionTimeoutOverlay {
	if lead <= 0 {
		lead = DefaultWarningLead
	}
	return SessionTimeoutOverlay{
		warningLead: lead,
		extendKey: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "extend session"),
		),
		bar: progress.New(
			progress.WithGradient(string(styles.Rose.Dark), string(styles.Amber.Dark)),
			progress.WithoutPercentage(),
		),
	}
}

// DefaultWarningLead is the warning window when none is configured.
const DefaultWarningLead = 5 * time.Minute

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetSize sets the overlay dimensions.
func (o *SessionTimeoutOverlay) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// ExtendKey returns the binding that requests an extension.
func (o SessionTimeoutOverlay) ExtendKey() key.Binding {
	return o.extendKey
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// Show displays the overlay with the given time remaining.
func (o *SessionTimeoutOverlay) Show(remaining time.Duration) {
	o.visible = true
	o.UpdateTime(remaining)
}

// ShowExpired displays the terminal message with the redirect reason.
func (o *SessionTimeoutOverlay) ShowExpired(reason string) {
	o.visible = true
	o.expired = true
	o.timeRemaining = 0
	o.reason = reason
}

// Hide hides the overlay.
func (o *SessionTimeoutOverlay) Hide() {
	o.visible = false
	o.expired = false
	o.reason = ""
}

// UpdateTime updates the countdown timer.
func (o *SessionTimeoutOverlay) UpdateTime(remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	o.timeRemaining = remaining
}

// IsVisible returns whether the overlay is currently visible.
func (o SessionTimeoutOverlay) IsVisible() bool {
	return o.visible
}

// IsExpired returns whether the session has ended.
func (o SessionTimeoutOverlay) IsExpired() bool {
	return o.expired
}

// TimeRemaining returns the current time remaining.
func (o SessionTimeoutOverlay) TimeRemaining() time.Duration {
	return o.timeRemaining
}

// Fraction returns how much of the warning window is left, in [0, 1].
func (o SessionTimeoutOverlay) Fraction() float64 {
	f := float64(o.timeRemaining) / float64(o.warningLead)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// SessionExtendRequestedMsg asks the host to extend the session.
type SessionExtendRequestedMsg struct{}

// Init initializes the overlay (no-op for overlays).
func (o SessionTimeoutOverlay) Init() tea.Cmd {
	return nil
}

// Update handles messages for the overlay. Only the extend key is consumed;
// other keys count as activity and are left to the host.
func (o SessionTimeoutOverlay) Update(msg tea.Msg) (SessionTimeoutOverlay, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height

	case tea.KeyMsg:
		if o.visible && !o.expired && key.Matches(msg, o.extendKey) {
			return o, func() tea.Msg {
				return SessionExtendRequestedMsg{}
			}
		}
	}

	return o, nil
}

// View renders the session timeout overlay.
func (o SessionTimeoutOverlay) View() string {
	if !o.visible {
		return ""
	}

	if o.expired {
		return o.viewExpired()
	}
	return o.viewWarning()
}

// =============================================================================
// RENDER METHODS
// =============================================================================

func (o SessionTimeoutOverlay) boxWidth() int {
	maxWidth := o.width - 8
	if maxWidth < 40 {
		maxWidth = 40
	}
	if maxWidth > 60 {
		maxWidth = 60
	}
	return maxWidth
}

// viewWarning renders the countdown box.
func (o SessionTimeoutOverlay) viewWarning() string {
	maxWidth := o.boxWidth()
	timeStr := formatTimeRemaining(o.timeRemaining)

	var parts []string

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true)
	parts = append(parts, titleStyle.Render(styles.StatusIndicators.Warning+" Session Timeout Warning"))
	parts = append(parts, "")

	timeStyle := lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	parts = append(parts, msgStyle.Render(
		"Session will expire in "+timeStyle.Render(timeStr)))
	parts = append(parts, "")

	bar := o.bar
	bar.Width = maxWidth - 10
	parts = append(parts, bar.ViewAs(o.Fraction()))
	parts = append(parts, "")

	hintStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Italic(true).
		Align(lipgloss.Center)
	parts = append(parts, hintStyle.Render(
		fmt.Sprintf("Press %s to extend, any other key to keep working", o.extendKey.Help().Key)))

	return o.place(styles.Amber, lipgloss.JoinVertical(lipgloss.Center, parts...))
}

// viewExpired renders the ended-session message.
func (o SessionTimeoutOverlay) viewExpired() string {
	maxWidth := o.boxWidth()

	var parts []string

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Rose).
		Bold(true)
	parts = append(parts, titleStyle.Render(styles.StatusIndicators.Error+" Session Ended"))
	parts = append(parts, "")

	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	parts = append(parts, msgStyle.Render(reasonMessage(o.reason)))
	parts = append(parts, "")

	exitStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Align(lipgloss.Center)
	parts = append(parts, exitStyle.Render("Log in again to continue. Press q to quit."))

	return o.place(styles.Rose, lipgloss.JoinVertical(lipgloss.Center, parts...))
}

func (o SessionTimeoutOverlay) place(border lipgloss.AdaptiveColor, content string) string {
	width := o.width
	if width == 0 {
		width = 60
	}
	height := o.height
	if height == 0 {
		height = 24
	}

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Padding(1, 3).
		Width(o.boxWidth()).
		Align(lipgloss.Center).
		Render(content)

	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		box,
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// formatTimeRemaining formats a duration as M:SS for display.
func formatTimeRemaining(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	totalSecs := int(d.Seconds())
	mins := totalSecs / 60
	secs := totalSecs % 60

	return fmt.Sprintf("%d:%02d", mins, secs)
}

// reasonMessage is the login-page text for a redirect reason.
func reasonMessage(reason string) string {
	switch reason {
	case "timeout":
		return "Your session has timed out due to inactivity."
	case "security":
		return "Your session was ended for security reasons."
	case "device":
		return "Your session could not be verified on this device."
	case "expired":
		return "Your session ended in another window."
	default:
		return "Your session has ended."
	}
}
