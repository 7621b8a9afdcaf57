// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/language"
)

// Version prefixes every computed signature so the format can change later.
const Version = "v1"

// renderSample is drawn through the terminal renderer; its output depends on
// the detected colour profile much like canvas pixels depend on the GPU.
const renderSample = "tabsession ◆ Cwm fjordbank glyphs vext quiz 0123456789"

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Environment is the raw material of a fingerprint.
type Environment struct {
	UserAgent string
	Language  string
	Platform  string
	Screen    string
	Timezone  string
	Render    string
}

// Source reports the current environment.
type Source interface {
	Environment() Environment
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Environment

// Environment implements Source.
func (f SourceFunc) Environment() Environment { return f() }

// SystemSource reads the environment of the running process. Only facts that
// hold for the whole login are used: window size, redirection and the
// binary's version are left out.
type SystemSource struct{}

// Environment implements Source.
func (SystemSource) Environment() Environment {
	return Environment{
		UserAgent: fmt.Sprintf("tabsession (%s; %s) %s", runtime.GOOS, runtime.GOARCH, terminalProgram()),
		Language:  detectLanguage(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Screen:    displayKind(),
		Timezone:  timezoneName(),
		Render:    renderSignature(envColorProfile()),
	}
}

func terminalProgram() string {
	if v := os.Getenv("TERM_PROGRAM"); v != "" {
		return v
	}
	if v := os.Getenv("TERM"); v != "" {
		return v
	}
	return "unknown"
}

// displayKind names the display the terminal runs on.
func displayKind() string {
	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "":
		return "wayland"
	case os.Getenv("DISPLAY") != "":
		return "x11"
	case os.Getenv("SSH_TTY") != "" || os.Getenv("SSH_CONNECTION") != "":
		return "ssh"
	default:
		return "local"
	}
}

// envColorProfile reads the colour profile from TERM and COLORTERM alone, so
// piping stdout does not change it.
func envColorProfile() termenv.Profile {
	return termenv.NewOutput(os.Stdout, termenv.WithUnsafe()).EnvColorProfile()
}

// detectLanguage returns the canonical BCP 47 tag of the POSIX locale.
func detectLanguage() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(env); v != "" {
			return CanonicalLanguage(v)
		}
	}
	return language.Und.String()
}

// CanonicalLanguage turns a POSIX locale such as "en_US.UTF-8" into a BCP 47
// tag. Unparseable input yields "und".
func CanonicalLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return language.Und.String()
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return language.Und.String()
	}
	return tag.String()
}

func timezoneName() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	name, _ := time.Now().Zone()
	return name
}

// renderSignature hashes a fixed styled sample rendered under profile.
func renderSignature(profile termenv.Profile) string {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(profile)

	style := r.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		Background(lipgloss.Color("#1A1A2E")).
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)

	sum := blake2b.Sum256([]byte(style.Render(renderSample)))
	return hex.EncodeToString(sum[:8])
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator computes signatures from a source.
type Generator struct {
	src Source
}

// NewGenerator returns a generator over src.
func NewGenerator(src Source) *Generator {
	if src == nil {
		src = SystemSource{}
	}
	return &Generator{src: src}
}

// Compute returns the current signature.
func (g *Generator) Compute() string {
	return Signature(g.src.Environment())
}

// Signature serializes env deterministically and hashes it.
func Signature(env Environment) string {
	fields := []string{
		"ua=" + env.UserAgent,
		"lang=" + env.Language,
		"platform=" + env.Platform,
		"screen=" + env.Screen,
		"tz=" + env.Timezone,
		"render=" + env.Render,
	}
	sum := blake2b.Sum256([]byte(strings.Join(fields, "\n")))
	return Version + ":" + hex.EncodeToString(sum[:])
}
