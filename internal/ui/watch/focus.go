// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"bytes"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// FOCUS REPORTING
// =============================================================================

// Terminal focus reporting (xterm mode 1004). While enabled the terminal
// writes CSI I when its window gains focus and CSI O when it loses it.
const (
	EnableFocusReporting  = "\x1b[?1004h"
	DisableFocusReporting = "\x1b[?1004l"
)

var (
	focusIn  = []byte("\x1b[I")
	focusOut = []byte("\x1b[O")
)

// FocusMsg is sent when the terminal window gains focus.
type FocusMsg struct{}

// BlurMsg is sent when the terminal window loses focus.
type BlurMsg struct{}

// FocusReader strips focus reports from terminal input and delivers them as
// FocusMsg and BlurMsg. Every other byte passes through unchanged.
type FocusReader struct {
	r    io.Reader
	send func(tea.Msg)

	mu      sync.Mutex
	buf     []byte
	pending []byte
	out     []byte
	err     error
}

// NewFocusReader wraps r. send receives the focus messages.
func NewFocusReader(r io.Reader, send func(tea.Msg)) *FocusReader {
	return &FocusReader{r: r, send: send, buf: make([]byte, 256)}
}

// FocusReader wraps r so focus reports reach the program attached to b.
func (b *Bridge) FocusReader(r io.Reader) *FocusReader {
	return NewFocusReader(r, b.post)
}

// Read implements io.Reader.
func (f *FocusReader) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.out) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		n, err := f.r.Read(f.buf)
		f.err = err
		data := append(f.pending, f.buf[:n]...)
		f.pending = nil
		f.out = f.filter(data, err != nil)
	}

	n := copy(p, f.out)
	f.out = f.out[n:]
	return n, nil
}

// filter removes focus reports from data. A trailing "ESC [" is held back
// until the next read unless final is set.
func (f *FocusReader) filter(data []byte, final bool) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		rest := data[i:]
		switch {
		case bytes.HasPrefix(rest, focusIn):
			f.send(FocusMsg{})
			i += len(focusIn)
		case bytes.HasPrefix(rest, focusOut) && !isSS3Arrow(rest):
			f.send(BlurMsg{})
			i += len(focusOut)
		case !final && len(rest) < len(focusIn) && bytes.HasPrefix(focusIn, rest) && len(rest) > 1:
			f.pending = append([]byte(nil), rest...)
			i = len(data)
		default:
			out = append(out, data[i])
			i++
		}
	}
	return out
}

// isSS3Arrow reports whether rest is an "ESC [ O" arrow key sent by some
// terminals rather than a focus report.
func isSS3Arrow(rest []byte) bool {
	if len(rest) <= len(focusOut) {
		return false
	}
	switch rest[len(focusOut)] {
	case 'A', 'B', 'C', 'D', 'a', 'b', 'c', 'd':
		return true
	}
	return false
}
