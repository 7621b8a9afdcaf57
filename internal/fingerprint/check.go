// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fingerprint

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrMismatch marks a fingerprint that differs from the one stored at login.
var ErrMismatch = errors.New("device fingerprint mismatch")

// Result is the outcome of a validation.
type Result int

const (
	// Unchecked means no comparison happened (store unavailable).
	Unchecked Result = iota
	// Stored means there was no reference yet and the current one was saved.
	Stored
	// Match means the current signature equals the reference.
	Match
	// Mismatch means the device changed. Soft signal only.
	Mismatch
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Stored:
		return "stored"
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return "unchecked"
	}
}

// Store holds the reference fingerprint.
type Store interface {
	StoredFingerprint(ctx context.Context) (string, bool)
	StoreFingerprint(ctx context.Context, fp string) error
}

// Checker compares the current signature with the stored reference.
type Checker struct {
	gen   *Generator
	store Store
	log   zerolog.Logger
}

// NewChecker wires a checker.
func NewChecker(gen *Generator, store Store, log zerolog.Logger) *Checker {
	return &Checker{gen: gen, store: store, log: log.With().Str("component", "fingerprint").Logger()}
}

// Validate checks the device. It never fails the session: a mismatch is
// logged as a warning and returned to the caller.
func (c *Checker) Validate(ctx context.Context) Result {
	current := c.gen.Compute()

	stored, ok := c.store.StoredFingerprint(ctx)
	if !ok {
		if err := c.store.StoreFingerprint(ctx, current); err != nil {
			c.log.Debug().Err(err).Msg("could not store device fingerprint")
			return Unchecked
		}
		return Stored
	}

	if stored == current {
		return Match
	}

	c.log.Warn().
		Err(ErrMismatch).
		Str("event", "FINGERPRINT_MISMATCH").
		Str("stored", shorten(stored)).
		Str("current", shorten(current)).
		Msg("device fingerprint changed since login")
	return Mismatch
}

func shorten(fp string) string {
	if len(fp) > 15 {
		return fp[:15]
	}
	return fp
}
