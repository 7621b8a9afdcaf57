// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/storage"
)

// ErrNoSession is returned by operations that need a stored session.
var ErrNoSession = errors.New("no stored session")

// Fingerprinter computes the current device signature.
type Fingerprinter interface {
	Compute() string
}

// Store reads and writes the session record over a shared storage backend.
// It is safe for concurrent use; consistency across tabs is last-write-wins.
type Store struct {
	backend storage.Backend
	prefs   PreferenceStore
	fp      Fingerprinter
	log     zerolog.Logger
	now     func() time.Time
}

// NewStore wires a store. prefs and fp may be nil.
func NewStore(backend storage.Backend, prefs PreferenceStore, fp Fingerprinter, log zerolog.Logger) *Store {
	if prefs == nil {
		prefs = NewMemoryPreferences(nil)
	}
	return &Store{
		backend: backend,
		prefs:   prefs,
		fp:      fp,
		log:     log.With().Str("component", "credentials").Logger(),
		now:     time.Now,
	}
}

// SetClock overrides the wall clock used for created timestamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Backend returns the underlying shared storage.
func (s *Store) Backend() storage.Backend { return s.backend }

// Available reports whether the backing mechanism is usable.
func (s *Store) Available() bool {
	return s.backend != nil && s.backend.Available()
}

// =============================================================================
// SAVE / READ / CLEAR
// =============================================================================

// Save persists rec with the device fingerprint computed now and records the
// remember-me preference. If the preference cannot be written the stored
// credentials are cleared so the two never disagree.
func (s *Store) Save(ctx context.Context, rec Record, rememberMe bool) error {
	if !rec.Complete() {
		return fmt.Errorf("incomplete session record")
	}

	rec.RememberMe = rememberMe
	if s.fp != nil {
		rec.DeviceFingerprint = s.fp.Compute()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	user, err := json.Marshal(rec.User)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}

	// Access token last: siblings treat its arrival as "session ready".
	writes := []struct{ key, value string }{
		{KeyUserData, string(user)},
		{KeyRememberMe, strconv.FormatBool(rememberMe)},
		{KeyDeviceFingerprint, rec.DeviceFingerprint},
		{KeySessionCreated, rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if rec.RefreshToken != "" {
		writes = append(writes, struct{ key, value string }{KeyRefreshToken, rec.RefreshToken})
	} else if err := s.backend.Remove(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	writes = append(writes, struct{ key, value string }{KeyAccessToken, rec.AccessToken})

	for _, w := range writes {
		if err := s.backend.Set(ctx, w.key, w.value); err != nil {
			s.rollback(ctx)
			return fmt.Errorf("failed to save session: %w", err)
		}
	}

	if err := s.prefs.Set(rememberMe); err != nil {
		s.rollback(ctx)
		return fmt.Errorf("failed to save session preference: %w", err)
	}

	s.log.Debug().Str("user", rec.User.ID).Bool("remember_me", rememberMe).Msg("session saved")
	return nil
}

func (s *Store) rollback(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("rollback of partial session failed")
	}
}

// Read returns the stored record. Missing, partial or malformed data reads as
// absent; Read never fails.
func (s *Store) Read(ctx context.Context) (Record, bool) {
	if s.backend == nil {
		return Record{}, false
	}

	get := func(key string) string {
		v, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			s.log.Debug().Err(err).Str("key", key).Msg("read failed")
			return ""
		}
		if !ok {
			return ""
		}
		return v
	}

	var rec Record
	rec.AccessToken = get(KeyAccessToken)
	if rec.AccessToken == "" {
		return Record{}, false
	}

	raw := get(KeyUserData)
	if raw == "" {
		return Record{}, false
	}
	if err := json.Unmarshal([]byte(raw), &rec.User); err != nil {
		s.log.Debug().Err(err).Msg("stored user profile is malformed")
		return Record{}, false
	}

	rec.RefreshToken = get(KeyRefreshToken)
	rec.RememberMe, _ = strconv.ParseBool(get(KeyRememberMe))
	rec.DeviceFingerprint = get(KeyDeviceFingerprint)
	if created := get(KeySessionCreated); created != "" {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = t
		}
	}

	if !rec.Complete() {
		return Record{}, false
	}
	return rec, true
}

// Clear removes every record key and every per-user cached key of the stored
// user. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	// Owners come from the raw user data so a record missing its token still
	// has its cache purged.
	var owners []string
	if raw, ok, err := s.backend.Get(ctx, KeyUserData); err == nil && ok {
		var u UserProfile
		if json.Unmarshal([]byte(raw), &u) == nil {
			owners = u.CacheOwners()
		}
	}

	if err := s.backend.Remove(ctx, recordKeys...); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	for _, owner := range owners {
		keys, err := s.backend.Keys(ctx, userCachePrefix+owner+":")
		if err != nil {
			return fmt.Errorf("failed to list cached user keys: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := s.backend.Remove(ctx, keys...); err != nil {
			return fmt.Errorf("failed to clear cached user keys: %w", err)
		}
	}
	return nil
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// UpdateAccessToken replaces only the access token.
func (s *Store) UpdateAccessToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	return s.backend.Set(ctx, KeyAccessToken, token)
}

// UpdateTokens replaces both tokens. The access token is written last and
// commits the pair; if that write fails the previous refresh token is put
// back, so a failed update leaves the stored session as it was.
func (s *Store) UpdateTokens(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("empty token pair")
	}
	prev, hadPrev, err := s.backend.Get(ctx, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}
	if err := s.backend.Set(ctx, KeyRefreshToken, refresh); err != nil {
		return err
	}
	if err := s.backend.Set(ctx, KeyAccessToken, access); err != nil {
		s.restoreRefreshToken(ctx, prev, hadPrev)
		return err
	}
	return nil
}

func (s *Store) restoreRefreshToken(ctx context.Context, prev string, hadPrev bool) {
	var err error
	if hadPrev {
		err = s.backend.Set(ctx, KeyRefreshToken, prev)
	} else {
		err = s.backend.Remove(ctx, KeyRefreshToken)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to restore refresh token")
	}
}

// StoredFingerprint returns the fingerprint captured at login, if any.
func (s *Store) StoredFingerprint(ctx context.Context) (string, bool) {
	v, ok, err := s.backend.Get(ctx, KeyDeviceFingerprint)
	if err != nil || !ok || v == "" {
		return "", false
	}
	return v, true
}

// StoreFingerprint records fp as the reference fingerprint.
func (s *Store) StoreFingerprint(ctx context.Context, fp string) error {
	return s.backend.Set(ctx, KeyDeviceFingerprint, fp)
}

// SetState publishes the last known monitor state for sibling tabs.
func (s *Store) SetState(ctx context.Context, state string) error {
	return s.backend.Set(ctx, KeySessionState, state)
}

// State returns the last published monitor state.
func (s *Store) State(ctx context.Context) string {
	v, _, _ := s.backend.Get(ctx, KeySessionState)
	return v
}

// RememberedIntent returns the remember-me choice from the preference store,
// which survives logout.
func (s *Store) RememberedIntent() (bool, bool) {
	pref, ok := s.prefs.Get()
	if !ok {
		return false, false
	}
	return pref.RememberMe, true
}

// CacheUserValue files a per-user value under the stored user so that Clear
// removes it on logout.
func (s *Store) CacheUserValue(ctx context.Context, name, value string) error {
	rec, ok := s.Read(ctx)
	if !ok {
		return ErrNoSession
	}
	owners := rec.User.CacheOwners()
	return s.backend.Set(ctx, userCachePrefix+owners[0]+":"+name, value)
}

// CachedUserValue returns a value stored with CacheUserValue.
func (s *Store) CachedUserValue(ctx context.Context, name string) (string, bool) {
	rec, ok := s.Read(ctx)
	if !ok {
		return "", false
	}
	v, ok, err := s.backend.Get(ctx, userCachePrefix+rec.User.CacheOwners()[0]+":"+name)
	if err != nil {
		return "", false
	}
	return v, ok
}

// IsRecordKey reports whether key belongs to the session record.
func IsRecordKey(key string) bool {
	for _, k := range recordKeys {
		if k == key {
			return true
		}
	}
	return false
}
