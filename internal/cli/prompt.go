// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Interactive credential input for login.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/jeranaias/tabsession/internal/config"
)

// ErrPromptAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrPromptAborted = errors.New("login cancelled")

// Prompter asks the user for login credentials.
type Prompter interface {
	Email() (string, error)
	Password() (string, error)
}

// =============================================================================
// TERMINAL PROMPTER
// =============================================================================

// terminalPrompter reads the email with line editing and history, and the
// password without echo.
type terminalPrompter struct {
	out         io.Writer
	historyFile string
}

func newTerminalPrompter(out io.Writer) *terminalPrompter {
	p := &terminalPrompter{out: out}
	if dir, err := config.ConfigDir(); err == nil {
		p.historyFile = filepath.Join(dir, "login_history")
	}
	return p
}

// Email implements Prompter. Up-arrow recalls previously used addresses.
func (p *terminalPrompter) Email() (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if p.historyFile != "" {
		if f, err := os.Open(p.historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	email, err := line.Prompt("Email: ")
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrPromptAborted
	}
	if err != nil {
		return "", fmt.Errorf("failed to read email: %w", err)
	}
	email = strings.TrimSpace(email)

	if email != "" && p.historyFile != "" {
		line.AppendHistory(email)
		if err := os.MkdirAll(filepath.Dir(p.historyFile), 0o700); err == nil {
			if f, err := os.OpenFile(p.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				_, _ = line.WriteHistory(f)
				f.Close()
			}
		}
	}
	return email, nil
}

// Password implements Prompter.
func (p *terminalPrompter) Password() (string, error) {
	fmt.Fprint(p.out, "Password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pass), nil
}

// =============================================================================
// PIPED INPUT
// =============================================================================

// readSecretLine reads one line from r for --password-stdin.
func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrMissingArgument("password", `echo "$PASSWORD" | tabsession login alice@example.com --password-stdin`)
	}
	return line, nil
}
