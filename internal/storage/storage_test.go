// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SHARED BACKEND CONTRACT
// =============================================================================

// openPair returns two tabs on the same shared store.
type openPair func(t *testing.T) (a, b Backend)

func memoryPair(t *testing.T) (Backend, Backend) {
	p := NewProfile()
	a, b := p.Open("tab-a"), p.Open("tab-b")
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func sqlitePair(t *testing.T) (Backend, Backend) {
	path := filepath.Join(t.TempDir(), "store.db")
	a, err := OpenSQLite(path, "tab-a", 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	b, err := OpenSQLite(path, "tab-b", 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func redisPair(t *testing.T) (Backend, Backend) {
	url := os.Getenv("TABSESSION_TEST_REDIS")
	if url == "" {
		t.Skip("TABSESSION_TEST_REDIS not set")
	}
	ns := "tabsession-test-" + NewOrigin()
	ctx := context.Background()
	a, err := OpenRedis(ctx, url, ns, "tab-a", zerolog.Nop())
	require.NoError(t, err)
	b, err := OpenRedis(ctx, url, ns, "tab-b", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, _ := a.Keys(ctx, "")
		_ = a.Remove(ctx, keys...)
		a.Close()
		b.Close()
	})
	return a, b
}

var backends = map[string]openPair{
	"memory": memoryPair,
	"sqlite": sqlitePair,
	"redis":  redisPair,
}

func TestBackend_GetSetRemove(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b := open(t)

			require.True(t, a.Available())

			_, ok, err := a.Get(ctx, "access_token")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, a.Set(ctx, "access_token", "tok-1"))

			// Visible to the sibling tab.
			v, ok, err := b.Get(ctx, "access_token")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "tok-1", v)

			require.NoError(t, b.Remove(ctx, "access_token"))
			_, ok, err = a.Get(ctx, "access_token")
			require.NoError(t, err)
			require.False(t, ok)

			// Removing a missing key is not an error.
			require.NoError(t, a.Remove(ctx, "access_token", "never_set"))
		})
	}
}

func TestBackend_KeysByPrefix(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := open(t)

			require.NoError(t, a.Set(ctx, "user_cache:7:theme", "dark"))
			require.NoError(t, a.Set(ctx, "user_cache:7:layout", "grid"))
			require.NoError(t, a.Set(ctx, "user_data", "{}"))

			keys, err := a.Keys(ctx, "user_cache:7:")
			require.NoError(t, err)
			require.Equal(t, []string{"user_cache:7:layout", "user_cache:7:theme"}, keys)
		})
	}
}

func TestBackend_KeysPrefixIsLiteral(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := open(t)

			require.NoError(t, a.Set(ctx, "user_cache:a*[x]é:theme", "dark"))
			require.NoError(t, a.Set(ctx, "user_cache:ab[x]é:theme", "light"))
			require.NoError(t, a.Set(ctx, "user_cache:a?:theme", "grid"))

			keys, err := a.Keys(ctx, "user_cache:a*[x]é:")
			require.NoError(t, err)
			require.Equal(t, []string{"user_cache:a*[x]é:theme"}, keys)

			keys, err = a.Keys(ctx, "user_cache:a?:")
			require.NoError(t, err)
			require.Equal(t, []string{"user_cache:a?:theme"}, keys)
		})
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"user_cache:7:": "user_cache:7:",
		"a*b?":          `a\*b\?`,
		"[x]":           `\[x\]`,
		`back\slash`:    `back\\slash`,
		"ns:é":          "ns:é",
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBackend_WatchNotifiesOthersNotSelf(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, b := open(t)

			aChanges, err := a.Watch(ctx)
			require.NoError(t, err)
			bChanges, err := b.Watch(ctx)
			require.NoError(t, err)

			require.NoError(t, a.Set(ctx, "access_token", "tok-1"))

			select {
			case c := <-bChanges:
				require.Equal(t, "access_token", c.Key)
				require.Equal(t, "tok-1", c.Value)
				require.Equal(t, "tab-a", c.Origin)
				require.False(t, c.Removed)
			case <-time.After(3 * time.Second):
				t.Fatal("sibling tab did not observe the write")
			}

			select {
			case c := <-aChanges:
				t.Fatalf("writer observed its own change: %+v", c)
			case <-time.After(150 * time.Millisecond):
			}

			require.NoError(t, a.Remove(ctx, "access_token"))
			select {
			case c := <-bChanges:
				require.Equal(t, "access_token", c.Key)
				require.True(t, c.Removed)
			case <-time.After(3 * time.Second):
				t.Fatal("sibling tab did not observe the removal")
			}
		})
	}
}

func TestBackend_NoOpWritesAreSilent(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, b := open(t)

			require.NoError(t, a.Set(ctx, "remember_me", "true"))

			changes, err := b.Watch(ctx)
			require.NoError(t, err)

			require.NoError(t, a.Set(ctx, "remember_me", "true"))
			require.NoError(t, a.Remove(ctx, "missing"))

			select {
			case c := <-changes:
				t.Fatalf("unexpected change %+v", c)
			case <-time.After(150 * time.Millisecond):
			}
		})
	}
}

func TestBackend_ClosedBackend(t *testing.T) {
	a := NewMemory("tab-a")
	require.NoError(t, a.Close())
	require.False(t, a.Available())

	_, _, err := a.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.Set(context.Background(), "k", "v"), ErrClosed)

	// Idempotent.
	require.NoError(t, a.Close())
}

// =============================================================================
// OPEN / FALLBACK
// =============================================================================

func TestOpen_SQLite(t *testing.T) {
	b := Open(context.Background(), Options{Kind: KindSQLite, Dir: t.TempDir(), Origin: "tab-a"}, zerolog.Nop())
	defer b.Close()

	require.Equal(t, KindSQLite, b.Name())
	require.Equal(t, "tab-a", b.Origin())
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	// A regular file where the directory should be makes sqlite unusable.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	b := Open(context.Background(), Options{Kind: KindSQLite, Dir: blocker}, zerolog.Nop())
	defer b.Close()

	require.Equal(t, KindMemory, b.Name())
	require.True(t, b.Available())
	require.NotEmpty(t, b.Origin())

	b = Open(context.Background(), Options{Kind: "floppy"}, zerolog.Nop())
	require.Equal(t, KindMemory, b.Name())
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	a, err := OpenSQLite(path, "tab-a", 0, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, "refresh_token", "r-1"))
	require.NoError(t, a.Close())

	b, err := OpenSQLite(path, "tab-b", 0, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	v, ok, err := b.Get(ctx, "refresh_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r-1", v)
}
