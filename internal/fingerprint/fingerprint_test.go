// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fingerprint

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testEnv = Environment{
	UserAgent: "tabsession/1.0 (linux; amd64)",
	Language:  "en-US",
	Platform:  "linux/amd64",
	Screen:    "120x40",
	Timezone:  "Europe/Berlin",
	Render:    "deadbeef",
}

func TestSignature_Deterministic(t *testing.T) {
	a := Signature(testEnv)
	b := Signature(testEnv)
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, Version+":"))
	require.Len(t, a, len(Version)+1+64)

	changed := testEnv
	changed.Screen = "80x24"
	require.NotEqual(t, a, Signature(changed))
}

func TestCanonicalLanguage(t *testing.T) {
	tests := map[string]string{
		"en_US.UTF-8":     "en-US",
		"de_DE@euro":      "de-DE",
		"pt_BR":           "pt-BR",
		"C":               "und",
		"":                "und",
		"not a language!": "und",
	}
	for in, want := range tests {
		if got := CanonicalLanguage(in); got != want {
			t.Errorf("CanonicalLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderSignature_StablePerProfile(t *testing.T) {
	require.Equal(t, renderSignature(termenv.Ascii), renderSignature(termenv.Ascii))
	require.NotEqual(t, renderSignature(termenv.Ascii), renderSignature(termenv.TrueColor))
}

func TestSystemSource(t *testing.T) {
	t.Setenv("LC_ALL", "fr_FR.UTF-8")
	t.Setenv("TZ", "America/New_York")

	env := SystemSource{}.Environment()
	require.Contains(t, env.UserAgent, "tabsession ("+runtime.GOOS)
	require.Equal(t, "fr-FR", env.Language)
	require.Equal(t, "America/New_York", env.Timezone)
	require.NotEmpty(t, env.Screen)
	require.NotEmpty(t, env.Render)
}

func TestSystemSource_StableAcrossRuns(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	first := SystemSource{}.Environment()
	second := SystemSource{}.Environment()
	require.Equal(t, first, second)
	require.Equal(t, renderSignature(envColorProfile()), first.Render)
}

func TestDisplayKind(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"wayland", map[string]string{"WAYLAND_DISPLAY": "wayland-0", "DISPLAY": ":0"}, "wayland"},
		{"x11", map[string]string{"DISPLAY": ":1"}, "x11"},
		{"ssh", map[string]string{"SSH_CONNECTION": "10.0.0.2 51234 10.0.0.1 22"}, "ssh"},
		{"local", nil, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"WAYLAND_DISPLAY", "DISPLAY", "SSH_TTY", "SSH_CONNECTION"} {
				t.Setenv(k, tt.env[k])
			}
			if got := displayKind(); got != tt.want {
				t.Errorf("displayKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

type memStore struct {
	fp  string
	set bool
}

func (m *memStore) StoredFingerprint(context.Context) (string, bool) { return m.fp, m.set }
func (m *memStore) StoreFingerprint(_ context.Context, fp string) error {
	m.fp, m.set = fp, true
	return nil
}

func TestChecker_Validate(t *testing.T) {
	ctx := context.Background()
	env := testEnv
	gen := NewGenerator(SourceFunc(func() Environment { return env }))
	store := &memStore{}
	c := NewChecker(gen, store, zerolog.Nop())

	require.Equal(t, Stored, c.Validate(ctx))
	require.Equal(t, Signature(testEnv), store.fp)

	require.Equal(t, Match, c.Validate(ctx))

	env.Timezone = "Asia/Tokyo"
	require.Equal(t, Mismatch, c.Validate(ctx))
	// Soft signal: the reference is left alone.
	require.Equal(t, Signature(testEnv), store.fp)
	require.Equal(t, "mismatch", Mismatch.String())
}
