// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable indicates the underlying mechanism cannot be used at all.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("storage closed")
)

// =============================================================================
// TYPES
// =============================================================================

// Change describes one write to the shared store.
type Change struct {
	Seq     int64     `json:"seq"`
	Origin  string    `json:"origin"`
	Key     string    `json:"key"`
	Value   string    `json:"value,omitempty"`
	Removed bool      `json:"removed,omitempty"`
	At      time.Time `json:"at"`
}

// Backend is a per-origin key/value store visible to every tab of a profile.
//
// Writes that do not change anything (setting an identical value, removing
// a missing key) are not recorded as changes.
type Backend interface {
	// Name identifies the backend kind ("sqlite", "redis", "memory").
	Name() string

	// Origin is the tab ID writes from this handle are attributed to.
	Origin() string

	// Available reports whether the mechanism is usable right now.
	Available() bool

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error

	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Watch streams changes written by other origins until ctx is done or
	// the backend is closed.
	Watch(ctx context.Context) (<-chan Change, error)

	Close() error
}

// =============================================================================
// OPEN
// =============================================================================

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	// Kind is one of KindSQLite, KindRedis, KindMemory.
	Kind string

	// Dir is the origin directory for the sqlite backend.
	Dir string

	// RedisURL and Namespace configure the redis backend.
	RedisURL  string
	Namespace string

	// Origin is the tab ID. Generated when empty.
	Origin string

	// PollInterval is used by the sqlite journal when fsnotify is unavailable.
	PollInterval time.Duration
}

// NewOrigin returns a fresh tab ID.
func NewOrigin() string {
	return "tab_" + uuid.NewString()
}

// Open opens the configured backend. When it cannot be opened or reports
// itself unusable, an in-memory backend is returned instead so callers keep
// working without persistence.
func Open(ctx context.Context, opts Options, log zerolog.Logger) Backend {
	if opts.Origin == "" {
		opts.Origin = NewOrigin()
	}

	var (
		backend Backend
		err     error
	)

	switch opts.Kind {
	case KindMemory:
		return NewMemory(opts.Origin)
	case KindRedis:
		backend, err = OpenRedis(ctx, opts.RedisURL, opts.Namespace, opts.Origin, log)
	case KindSQLite, "":
		backend, err = OpenSQLite(filepath.Join(opts.Dir, "store.db"), opts.Origin, opts.PollInterval, log)
	default:
		err = fmt.Errorf("%w: unknown backend %q", ErrUnavailable, opts.Kind)
	}

	if err == nil && !backend.Available() {
		backend.Close()
		err = ErrUnavailable
	}
	if err != nil {
		log.Warn().Err(err).
			Str("event", "STORAGE_UNAVAILABLE").
			Str("backend", opts.Kind).
			Msg("falling back to in-memory session storage")
		return NewMemory(opts.Origin)
	}

	return backend
}
