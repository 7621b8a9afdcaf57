// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.InactivityTimeout.Std() != 2*time.Hour {
		t.Errorf("InactivityTimeout = %v, want 2h", cfg.Session.InactivityTimeout)
	}
	if cfg.Session.RememberMeTimeout.Std() != 24*time.Hour {
		t.Errorf("RememberMeTimeout = %v, want 24h", cfg.Session.RememberMeTimeout)
	}
	if cfg.Session.WarningLead.Std() != 5*time.Minute {
		t.Errorf("WarningLead = %v, want 5m", cfg.Session.WarningLead)
	}
	if cfg.Session.TickInterval.Std() != time.Second {
		t.Errorf("TickInterval = %v, want 1s", cfg.Session.TickInterval)
	}
	if cfg.Session.ValidityInterval.Std() != 5*time.Minute {
		t.Errorf("ValidityInterval = %v, want 5m", cfg.Session.ValidityInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://api.example.com/"

[session]
inactivity_timeout = "30m"
warning_lead = "2m"

[storage]
backend = "Memory"
origin = "https://app.example.com"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	require.Equal(t, 30*time.Minute, cfg.Session.InactivityTimeout.Std())
	require.Equal(t, 2*time.Minute, cfg.Session.WarningLead.Std())
	// Untouched keys keep their defaults.
	require.Equal(t, 24*time.Hour, cfg.Session.RememberMeTimeout.Std())
	require.Equal(t, "memory", cfg.Storage.Backend)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[session]\ninactivity = \"1h\"\n")
	_, err := LoadFromPath(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "session.inactivity")
}

func TestLoadFromPath_BadDuration(t *testing.T) {
	path := writeConfig(t, "[session]\nwarning_lead = \"soon\"\n")
	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"lead too long", func(c *Config) { c.Session.WarningLead = Duration(3 * time.Hour) }, "session.warning_lead"},
		{"remember shorter", func(c *Config) { c.Session.RememberMeTimeout = Duration(time.Hour) }, "session.remember_me_timeout"},
		{"zero tick", func(c *Config) { c.Session.TickInterval = 0 }, "session.tick_interval"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend"},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redis_url"},
		{"redis bad url", func(c *Config) {
			c.Storage.Backend = "redis"
			c.Storage.RedisURL = "http://cache"
		}, "storage.redis_url"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var errs ValidateErrors
			require.True(t, errors.As(err, &errs), "expected ValidateErrors, got %v", err)

			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			require.True(t, found, "no error for %s in %v", tt.field, errs)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TABSESSION_API_URL", "https://auth.internal")
	t.Setenv("TABSESSION_STORAGE", "redis")
	t.Setenv("TABSESSION_REDIS_URL", "redis://:pw@cache:6379/2")
	t.Setenv("TABSESSION_INACTIVITY_TIMEOUT", "45m")
	t.Setenv("TABSESSION_WARNING_LEAD", "not-a-duration")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "https://auth.internal", cfg.API.BaseURL)
	require.Equal(t, "redis", cfg.Storage.Backend)
	require.Equal(t, 45*time.Minute, cfg.Session.InactivityTimeout.Std())
	require.Equal(t, 5*time.Minute, cfg.Session.WarningLead.Std())
	require.NoError(t, cfg.Validate())

	require.NotContains(t, cfg.String(), ":pw@")
	require.Contains(t, cfg.String(), "REDACTED")
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "default", cfg.Storage.Origin)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("session.warning_lead", "90s"))
	v, err := cfg.Get("session.warning_lead")
	require.NoError(t, err)
	require.Equal(t, Duration(90*time.Second), v)

	require.NoError(t, cfg.Set("storage.backend", "memory"))
	require.NoError(t, cfg.Set("session.check_fingerprint", "false"))
	require.False(t, cfg.Session.CheckFingerprint)

	require.Error(t, cfg.Set("session.warning_lead", "eventually"))
	_, err = cfg.Get("session.nope")
	require.Error(t, err)
	_, err = cfg.Get("api.base_url.host")
	require.Error(t, err)
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	require.Contains(t, keys, "session.inactivity_timeout")
	require.Contains(t, keys, "storage.redis_url")

	cfg := Default()
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) error = %v", k, err)
		}
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Session.WarningLead = Duration(3 * time.Minute)
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# tabsession configuration file"))
	require.Contains(t, string(data), `warning_lead = "3m0s"`)

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Session, loaded.Session)
}

func TestOriginDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Origin = "https://app.example.com:8443"
	dir, err := cfg.OriginDir()
	require.NoError(t, err)
	require.Equal(t, "https___app.example.com_8443", filepath.Base(dir))

	cfg.Storage.Dir = "/tmp/explicit"
	dir, err = cfg.OriginDir()
	require.NoError(t, err)
	require.Equal(t, "/tmp/explicit", dir)
}
