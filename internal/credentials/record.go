// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Persisted key layout. Every tab of an origin reads and writes these keys.
const (
	KeyAccessToken       = "access_token"
	KeyRefreshToken      = "refresh_token"
	KeyUserData          = "user_data"
	KeyRememberMe        = "remember_me"
	KeyDeviceFingerprint = "device_fingerprint"
	KeySessionCreated    = "session_created"
	KeySessionState      = "session_state"

	// userCachePrefix owns per-user cached values: user_cache:<id|email>:<name>.
	userCachePrefix = "user_cache:"
)

// recordKeys are removed by Clear, access token first so sibling tabs react
// to the logout before anything else disappears.
var recordKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyUserData,
	KeyRememberMe,
	KeyDeviceFingerprint,
	KeySessionCreated,
	KeySessionState,
}

// =============================================================================
// USER PROFILE
// =============================================================================

// UserProfile is the denormalized identity snapshot returned at login. It is
// not validated here; unknown fields survive a round trip through Extra.
type UserProfile struct {
	ID           string
	Email        string
	Name         string
	ProfileImage string
	Extra        map[string]any
}

// CacheOwners returns the identifiers per-user cached keys may be filed under.
func (u UserProfile) CacheOwners() []string {
	var owners []string
	if u.ID != "" {
		owners = append(owners, u.ID)
	}
	if u.Email != "" {
		owners = append(owners, u.Email)
	}
	return owners
}

// MarshalJSON flattens Extra next to the known fields.
func (u UserProfile) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+4)
	for k, v := range u.Extra {
		m[k] = v
	}
	m["id"] = u.ID
	m["email"] = u.Email
	m["name"] = u.Name
	if u.ProfileImage != "" {
		m["profileImage"] = u.ProfileImage
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts numeric or string ids and both profile image spellings.
func (u *UserProfile) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("user profile must be an object")
	}

	*u = UserProfile{}
	u.ID = stringField(m, "id")
	u.Email = stringField(m, "email")
	u.Name = stringField(m, "name")
	u.ProfileImage = stringField(m, "profileImage")
	if u.ProfileImage == "" {
		u.ProfileImage = stringField(m, "profile_image")
	}

	for _, k := range []string{"id", "email", "name", "profileImage", "profile_image"} {
		delete(m, k)
	}
	if len(m) > 0 {
		u.Extra = m
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the session bundle kept in the credential store.
type Record struct {
	AccessToken       string
	RefreshToken      string
	User              UserProfile
	RememberMe        bool
	DeviceFingerprint string
	CreatedAt         time.Time
}

// Complete reports whether every required field is present. A partial record
// is treated as no session at all.
func (r Record) Complete() bool {
	return r.AccessToken != "" && (r.User.ID != "" || r.User.Email != "")
}
