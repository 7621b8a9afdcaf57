// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the per-origin key/value store shared by every
// tab of a profile.
//
// A "tab" is any process or manager instance that opens the same origin. Each
// opened Backend carries an origin ID; writes are recorded with that origin so
// a Watch feed can hand every other tab the change while never replaying a
// tab's own writes back to it.
//
// # Backends
//
//   - SQLiteBackend: a database file in the origin directory plus a change
//     journal. Sibling processes are woken through fsnotify on a signal file,
//     with a polling fallback.
//   - RedisBackend: keys under a namespace, changes fanned out over pub/sub.
//   - MemoryBackend: an in-process Profile hub. Used by tests and as the
//     degraded mode when the configured backend is unusable.
//
// # Usage
//
//	backend := storage.Open(ctx, storage.Options{Kind: "sqlite", Dir: dir}, log)
//	defer backend.Close()
//
//	changes, err := backend.Watch(ctx)
//	for c := range changes {
//	    // c.Origin != backend.Origin()
//	}
package storage
