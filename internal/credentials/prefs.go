// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/tabsession/internal/util"
)

// Preference lifetimes, in days, mirroring the remember-me choice.
const (
	RememberMeDays = 30
	DefaultDays    = 1
)

// Preference is the low-sensitivity "remember me" intent. It outlives the
// credentials so a later login can pre-select the user's last choice.
type Preference struct {
	RememberMe bool      `toml:"remember_me"`
	Timestamp  time.Time `toml:"timestamp"`
	Expires    time.Time `toml:"expires"`
}

// PreferenceStore persists the session_preference entry with its own expiry.
type PreferenceStore interface {
	// Get returns the preference, or false when absent or expired.
	Get() (Preference, bool)
	Set(rememberMe bool) error
	Remove() error
}

// ttlFor returns the preference lifetime for a remember-me choice.
func ttlFor(rememberMe bool) time.Duration {
	if rememberMe {
		return RememberMeDays * 24 * time.Hour
	}
	return DefaultDays * 24 * time.Hour
}

// =============================================================================
// FILE PREFERENCES
// =============================================================================

// prefFile is the on-disk TOML layout.
type prefFile struct {
	SessionPreference *Preference `toml:"session_preference"`
}

// FilePreferences keeps the preference in a small TOML file in the origin
// directory, the equivalent of a cookie scoped to the origin.
type FilePreferences struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFilePreferences returns a store backed by path. now may be nil.
func NewFilePreferences(path string, now func() time.Time) *FilePreferences {
	if now == nil {
		now = time.Now
	}
	return &FilePreferences{path: path, now: now}
}

// Get implements PreferenceStore. Expired entries are deleted.
func (p *FilePreferences) Get() (Preference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var f prefFile
	if _, err := toml.DecodeFile(p.path, &f); err != nil || f.SessionPreference == nil {
		return Preference{}, false
	}
	pref := *f.SessionPreference
	if !pref.Expires.IsZero() && !p.now().Before(pref.Expires) {
		_ = util.RemoveIfExists(p.path)
		return Preference{}, false
	}
	return pref, true
}

// Set implements PreferenceStore.
func (p *FilePreferences) Set(rememberMe bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	f := prefFile{SessionPreference: &Preference{
		RememberMe: rememberMe,
		Timestamp:  now,
		Expires:    now.Add(ttlFor(rememberMe)),
	}}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("failed to encode session preference: %w", err)
	}
	if err := util.AtomicWriteFile(p.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write session preference: %w", err)
	}
	return nil
}

// Remove implements PreferenceStore.
func (p *FilePreferences) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return util.RemoveIfExists(p.path)
}

// Path returns the backing file.
func (p *FilePreferences) Path() string { return p.path }

// =============================================================================
// MEMORY PREFERENCES
// =============================================================================

// MemoryPreferences is a process-local PreferenceStore.
type MemoryPreferences struct {
	mu   sync.Mutex
	pref *Preference
	now  func() time.Time
	err  error
}

// NewMemoryPreferences returns an empty in-memory store. now may be nil.
func NewMemoryPreferences(now func() time.Time) *MemoryPreferences {
	if now == nil {
		now = time.Now
	}
	return &MemoryPreferences{now: now}
}

// FailWrites makes every subsequent Set return err. Used to exercise rollback.
func (m *MemoryPreferences) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Get implements PreferenceStore.
func (m *MemoryPreferences) Get() (Preference, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pref == nil {
		return Preference{}, false
	}
	if !m.now().Before(m.pref.Expires) {
		m.pref = nil
		return Preference{}, false
	}
	return *m.pref, true
}

// Set implements PreferenceStore.
func (m *MemoryPreferences) Set(rememberMe bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	now := m.now()
	m.pref = &Preference{RememberMe: rememberMe, Timestamp: now, Expires: now.Add(ttlFor(rememberMe))}
	return nil
}

// Remove implements PreferenceStore.
func (m *MemoryPreferences) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pref = nil
	return nil
}

var (
	_ PreferenceStore = (*FilePreferences)(nil)
	_ PreferenceStore = (*MemoryPreferences)(nil)
)
