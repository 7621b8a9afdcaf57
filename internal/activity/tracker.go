// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// SIGNALS
// =============================================================================

// Signal is a kind of user interaction that counts as activity.
type Signal string

// Recognised activity signals.
const (
	SignalMouseDown  Signal = "mousedown"
	SignalMouseMove  Signal = "mousemove"
	SignalKeyPress   Signal = "keypress"
	SignalScroll     Signal = "scroll"
	SignalTouchStart Signal = "touchstart"
	SignalClick      Signal = "click"
)

// Signals lists every recognised signal.
var Signals = []Signal{
	SignalMouseDown,
	SignalMouseMove,
	SignalKeyPress,
	SignalScroll,
	SignalTouchStart,
	SignalClick,
}

// ParseSignal maps a signal name to a Signal.
func ParseSignal(name string) (Signal, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range Signals {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown activity signal %q", name)
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker holds the activity timestamp.
type Tracker struct {
	mu   sync.Mutex
	last time.Time
	kind Signal
	now  func() time.Time
}

// NewTracker creates a tracker whose timestamp starts at now(). A nil now
// uses the wall clock.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{last: now(), now: now}
}

// Record notes a signal at the current time.
func (t *Tracker) Record(s Signal) time.Time {
	return t.RecordAt(s, t.now())
}

// RecordAt notes a signal observed at at. Signals older than the current
// timestamp are ignored, so delayed delivery never rewinds the tracker.
func (t *Tracker) RecordAt(s Signal, at time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.last) {
		t.last = at
		t.kind = s
	}
	return t.last
}

// Reset sets the timestamp to now unconditionally.
func (t *Tracker) Reset() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = t.now()
	t.kind = ""
	return t.last
}

// Last returns the timestamp of the most recent signal.
func (t *Tracker) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// LastSignal returns the kind of the most recent signal, empty after Reset.
func (t *Tracker) LastSignal() Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind
}

// Idle returns the time elapsed since the most recent signal.
func (t *Tracker) Idle() time.Duration {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()

	idle := t.now().Sub(last)
	if idle < 0 {
		return 0
	}
	return idle
}
