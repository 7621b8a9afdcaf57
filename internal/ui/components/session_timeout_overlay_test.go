// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatTimeRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{5 * time.Minute, "5:00"},
		{4*time.Minute + 7*time.Second, "4:07"},
	}
	for _, tt := range tests {
		if got := formatTimeRemaining(tt.d); got != tt.want {
			t.Errorf("formatTimeRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSessionTimeoutOverlay_ShowHide(t *testing.T) {
	o := NewSessionTimeoutOverlay(5 * time.Minute)
	if o.IsVisible() || o.View() != "" {
		t.Fatal("new overlay should be hidden")
	}

	o.Show(150 * time.Second)
	if !o.IsVisible() {
		t.Fatal("Show() did not make the overlay visible")
	}
	if got := o.Fraction(); got != 0.5 {
		t.Errorf("Fraction() = %v, want 0.5", got)
	}
	if view := o.View(); !strings.Contains(view, "2:30") {
		t.Errorf("warning view missing countdown: %q", view)
	}

	o.UpdateTime(-time.Second)
	if o.TimeRemaining() != 0 {
		t.Errorf("TimeRemaining() = %v, want 0", o.TimeRemaining())
	}

	o.Hide()
	if o.IsVisible() {
		t.Error("Hide() left the overlay visible")
	}
}

func TestSessionTimeoutOverlay_Expired(t *testing.T) {
	o := NewSessionTimeoutOverlay(0)
	o.SetSize(80, 24)
	o.ShowExpired("expired")

	if !o.IsExpired() {
		t.Fatal("ShowExpired() did not mark the overlay expired")
	}
	if view := o.View(); !strings.Contains(view, "another window") {
		t.Errorf("expired view missing reason text: %q", view)
	}
}

func TestSessionTimeoutOverlay_ExtendKey(t *testing.T) {
	o := NewSessionTimeoutOverlay(5 * time.Minute)

	// Hidden overlays ignore keys.
	_, cmd := o.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	if cmd != nil {
		t.Fatal("hidden overlay requested an extension")
	}

	o.Show(time.Minute)
	_, cmd = o.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil {
		t.Error("non-extend key produced a command")
	}

	_, cmd = o.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	if cmd == nil {
		t.Fatal("extend key produced no command")
	}
	if _, ok := cmd().(SessionExtendRequestedMsg); !ok {
		t.Error("extend key did not request an extension")
	}
}

func TestReasonMessage(t *testing.T) {
	for _, reason := range []string{"timeout", "security", "device", "expired", ""} {
		if reasonMessage(reason) == "" {
			t.Errorf("reasonMessage(%q) is empty", reason)
		}
	}
}
