// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/activity"
)

// =============================================================================
// INACTIVITY MONITOR
// =============================================================================

// monitorHooks are invoked outside the monitor lock, on whichever goroutine
// caused the transition.
type monitorHooks struct {
	transition func(from, to State)
	warning    func(remaining time.Duration)
	active     func()
	expired    func()
}

// Monitor is the inactivity state machine of one tab. State changes are
// computed from the activity tracker's idle time, so a late or bursty
// tick only ever re-evaluates the same facts.
type Monitor struct {
	cfg     Config
	tracker *activity.Tracker
	hooks   monitorHooks
	log     zerolog.Logger

	mu         sync.Mutex
	state      State
	rememberMe bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func newMonitor(cfg Config, tracker *activity.Tracker, hooks monitorHooks, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		tracker: tracker,
		hooks:   hooks,
		log:     log,
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RememberMe reports which threshold is in force.
func (m *Monitor) RememberMe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rememberMe
}

// Threshold returns the idle limit in force.
func (m *Monitor) Threshold() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Threshold(m.rememberMe)
}

// Remaining returns the time until expiry, zero when not authenticated.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsAuthenticated() {
		return 0
	}
	left := m.cfg.Threshold(m.rememberMe) - m.tracker.Idle()
	if left < 0 {
		return 0
	}
	return left
}

// Begin enters Active for a new or adopted session, resets the activity
// timestamp and arms the tick loop.
func (m *Monitor) Begin(ctx context.Context, rememberMe bool) {
	m.mu.Lock()
	from := m.state
	m.state = Active
	m.rememberMe = rememberMe
	m.tracker.Reset()
	m.mu.Unlock()

	m.arm(ctx)
	if from != Active {
		m.fire(func() { m.hooks.transition(from, Active) })
	}
}

// End leaves the authenticated states and stops the tick loop. It reports
// whether the tab was authenticated, so callers act on a session end once.
// Ending an unauthenticated tab as Expired leaves it unauthenticated.
func (m *Monitor) End(to State) bool {
	m.mu.Lock()
	from := m.state
	wasAuthenticated := from.IsAuthenticated()
	if wasAuthenticated || to == Unauthenticated {
		m.state = to
	}
	changed := m.state != from
	m.mu.Unlock()

	m.disarm()
	if changed {
		m.fire(func() { m.hooks.transition(from, to) })
	}
	return wasAuthenticated
}

// SetRememberMe switches the idle threshold of an authenticated session and
// reports whether it changed.
func (m *Monitor) SetRememberMe(rememberMe bool) bool {
	m.mu.Lock()
	if !m.state.IsAuthenticated() || m.rememberMe == rememberMe {
		m.mu.Unlock()
		return false
	}
	m.rememberMe = rememberMe
	m.mu.Unlock()

	m.backToActive()
	return true
}

// Touch records an activity signal. In Warning it returns the tab to Active
// immediately rather than waiting for the next tick.
func (m *Monitor) Touch(s activity.Signal) {
	m.tracker.Record(s)
	m.backToActive()
}

// Extend resets the activity timestamp and leaves Warning.
func (m *Monitor) Extend() {
	m.mu.Lock()
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return
	}
	m.tracker.Reset()
	m.mu.Unlock()
	m.backToActive()
}

func (m *Monitor) backToActive() {
	m.mu.Lock()
	if m.state != Warning {
		m.mu.Unlock()
		return
	}
	if m.tracker.Idle() >= m.cfg.Threshold(m.rememberMe)-m.cfg.WarningLead {
		m.mu.Unlock()
		return
	}
	m.state = Active
	m.mu.Unlock()

	m.fire(func() { m.hooks.transition(Warning, Active) })
	m.fire(m.hooks.active)
}

// Tick evaluates the state machine once. It is safe to call at any rate
// and from any goroutine; once Expired it does nothing.
func (m *Monitor) Tick() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("panic", fmt.Sprint(r)).Msg("inactivity tick failed")
		}
	}()

	m.mu.Lock()
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return
	}

	idle := m.tracker.Idle()
	threshold := m.cfg.Threshold(m.rememberMe)
	from := m.state

	var calls []func()
	expired := false
	switch {
	case idle >= threshold:
		m.state = Expired
		expired = true
		calls = append(calls,
			func() { m.hooks.transition(from, Expired) },
			m.hooks.expired,
		)
	case idle >= threshold-m.cfg.WarningLead:
		remaining := threshold - idle
		if from != Warning {
			m.state = Warning
			calls = append(calls, func() { m.hooks.transition(from, Warning) })
		}
		calls = append(calls, func() { m.hooks.warning(remaining) })
	case from == Warning:
		m.state = Active
		calls = append(calls,
			func() { m.hooks.transition(Warning, Active) },
			m.hooks.active,
		)
	}
	m.mu.Unlock()

	if expired {
		m.disarm()
	}
	for _, fn := range calls {
		m.fire(fn)
	}
}

// fire runs a hook, containing any panic so enforcement keeps running.
func (m *Monitor) fire(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("panic", fmt.Sprint(r)).Msg("session hook failed")
		}
	}()
	fn()
}

// =============================================================================
// TICK LOOP
// =============================================================================

// arm starts the tick loop, cancelling any previous one first.
func (m *Monitor) arm(ctx context.Context) {
	if m.cfg.ExternalTick {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				// A cancelled loop must not tick even if both cases were ready.
				if loopCtx.Err() != nil {
					return
				}
				m.Tick()
			}
		}
	}()
}

// disarm cancels the tick loop without waiting for it, so it may be called
// from inside a tick.
func (m *Monitor) disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// wait blocks until every tick loop has exited.
func (m *Monitor) wait() {
	m.wg.Wait()
}
