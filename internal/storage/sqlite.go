// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// journalRetain is how many change rows are kept for slow readers.
const journalRetain = 1000

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS changes (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	origin  TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL DEFAULT '',
	removed INTEGER NOT NULL DEFAULT 0,
	at      INTEGER NOT NULL
);
`

// =============================================================================
// SQLITE BACKEND
// =============================================================================

// SQLiteBackend stores keys in a SQLite file shared by every process that
// opens the same origin directory. Every mutation also appends to the
// changes journal and rewrites the signal file, which wakes the journal
// watchers of sibling processes.
type SQLiteBackend struct {
	db           *sql.DB
	path         string
	signalPath   string
	origin       string
	pollInterval time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	closed   bool
	watchers []*journalWatcher
}

// OpenSQLite opens (creating if needed) the store database at path.
func OpenSQLite(path, origin string, pollInterval time.Duration, log zerolog.Logger) (*SQLiteBackend, error) {
	if origin == "" {
		origin = NewOrigin()
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteBackend{
		db:           db,
		path:         path,
		signalPath:   path + ".signal",
		origin:       origin,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "storage.sqlite").Logger(),
	}, nil
}

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return KindSQLite }

// Origin implements Backend.
func (s *SQLiteBackend) Origin() string { return s.origin }

// Path returns the database file path.
func (s *SQLiteBackend) Path() string { return s.path }

// Available checks writability with a rolled-back insert.
func (s *SQLiteBackend) Available() bool {
	if s.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
		"__avail__", "1", time.Now().UnixMilli())
	return err == nil
}

// Get implements Backend.
func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements Backend.
func (s *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&old)
	switch {
	case err == nil && old == value:
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("set %q: %w", key, err)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, now); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	seq, err := s.appendChange(ctx, tx, key, value, false, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.signal(seq)
	return nil
}

// Remove implements Backend.
func (s *SQLiteBackend) Remove(ctx context.Context, keys ...string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last int64
	now := time.Now().UnixMilli()
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
		if err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if last, err = s.appendChange(ctx, tx, key, "", true, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if last > 0 {
		s.signal(last)
	}
	return nil
}

// Keys implements Backend.
func (s *SQLiteBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? AND key != '__avail__' ORDER BY key",
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Watch implements Backend.
func (s *SQLiteBackend) Watch(ctx context.Context) (<-chan Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var head int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM changes").Scan(&head); err != nil {
		return nil, fmt.Errorf("read journal head: %w", err)
	}

	w := newJournalWatcher(s, head)
	if err := w.start(ctx); err != nil {
		return nil, err
	}
	s.watchers = append(s.watchers, w)
	return w.feed.out, nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()

	for _, w := range watchers {
		w.Close()
	}
	return s.db.Close()
}

func (s *SQLiteBackend) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SQLiteBackend) appendChange(ctx context.Context, tx *sql.Tx, key, value string, removed bool, at int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO changes (origin, key, value, removed, at) VALUES (?, ?, ?, ?, ?)",
		s.origin, key, value, removed, at)
	if err != nil {
		return 0, fmt.Errorf("journal %q: %w", key, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal %q: %w", key, err)
	}
	if seq%100 == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM changes WHERE seq <= ?", seq-journalRetain); err != nil {
			return 0, fmt.Errorf("trim journal: %w", err)
		}
	}
	return seq, nil
}

// signal rewrites the signal file so fsnotify watchers in other processes wake up.
func (s *SQLiteBackend) signal(seq int64) {
	if err := os.WriteFile(s.signalPath, []byte(strconv.FormatInt(seq, 10)), 0600); err != nil {
		s.log.Debug().Err(err).Msg("failed to write store signal")
	}
}

// changesSince reads journal rows after seq written by other origins.
func (s *SQLiteBackend) changesSince(ctx context.Context, seq int64) ([]Change, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, origin, key, value, removed, at FROM changes WHERE seq > ? ORDER BY seq", seq)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	var out []Change
	head := seq
	for rows.Next() {
		var (
			c       Change
			removed bool
			at      int64
		)
		if err := rows.Scan(&c.Seq, &c.Origin, &c.Key, &c.Value, &removed, &at); err != nil {
			return nil, seq, err
		}
		head = c.Seq
		if c.Origin == s.origin {
			continue
		}
		c.Removed = removed
		c.At = time.UnixMilli(at)
		out = append(out, c)
	}
	return out, head, rows.Err()
}
