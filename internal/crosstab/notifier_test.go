// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package crosstab

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabsession/internal/storage"
)

// recorder collects events from one subscriber.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func startNotifier(t *testing.T, b storage.Backend) *Notifier {
	t.Helper()
	n := NewNotifier(b, zerolog.Nop())
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(n.Close)
	return n
}

func TestNotifier_OtherTabsOnly(t *testing.T) {
	ctx := context.Background()
	profile := storage.NewProfile()
	tabA, tabB := profile.Open("tab-a"), profile.Open("tab-b")

	var gotA, gotB recorder
	startNotifier(t, tabA).Subscribe(gotA.add)
	startNotifier(t, tabB).Subscribe(gotB.add)

	require.NoError(t, tabA.Set(ctx, "access_token", "tok"))

	require.Eventually(t, func() bool { return len(gotB.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := gotB.snapshot()[0]
	require.Equal(t, "access_token", ev.Key)
	require.Equal(t, "tok", ev.Value)
	require.Equal(t, "tab-a", ev.Origin)

	// Give a stray echo time to show up before asserting it did not.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, gotA.snapshot())
}

func TestNotifier_SQLiteAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	tabA, err := storage.OpenSQLite(path, "tab-a", 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	defer tabA.Close()
	tabB, err := storage.OpenSQLite(path, "tab-b", 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	defer tabB.Close()

	var gotB recorder
	startNotifier(t, tabB).Subscribe(gotB.add)

	require.NoError(t, tabA.Set(ctx, "access_token", "tok"))
	require.NoError(t, tabA.Remove(ctx, "access_token"))

	require.Eventually(t, func() bool { return len(gotB.snapshot()) == 2 }, 3*time.Second, 10*time.Millisecond)
	events := gotB.snapshot()
	require.False(t, events[0].Removed)
	require.True(t, events[1].Removed)
}

func TestNotifier_PanickingSubscriberIsIsolated(t *testing.T) {
	ctx := context.Background()
	profile := storage.NewProfile()
	tabA, tabB := profile.Open("tab-a"), profile.Open("tab-b")

	n := startNotifier(t, tabB)
	var before, after recorder
	n.Subscribe(before.add)
	n.Subscribe(func(Event) { panic("boom") })
	n.Subscribe(after.add)

	require.NoError(t, tabA.Set(ctx, "user_data", "{}"))
	require.NoError(t, tabA.Set(ctx, "access_token", "tok"))

	require.Eventually(t, func() bool {
		return len(before.snapshot()) == 2 && len(after.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	profile := storage.NewProfile()
	tabA, tabB := profile.Open("tab-a"), profile.Open("tab-b")

	n := startNotifier(t, tabB)
	var got recorder
	unsubscribe := n.Subscribe(got.add)
	unsubscribe()
	unsubscribe()

	var sentinel recorder
	n.Subscribe(sentinel.add)

	require.NoError(t, tabA.Set(ctx, "k", "v"))
	require.Eventually(t, func() bool { return len(sentinel.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, got.snapshot())
}

func TestNotifier_StartTwiceAndRestart(t *testing.T) {
	b := storage.NewMemory("tab-a")
	n := NewNotifier(b, zerolog.Nop())
	require.NoError(t, n.Start(context.Background()))
	require.ErrorIs(t, n.Start(context.Background()), ErrStarted)

	n.Close()
	n.Close()
	require.NoError(t, n.Start(context.Background()))
	n.Close()
}

func TestSubscribers_Order(t *testing.T) {
	s := NewSubscribers[int](zerolog.Nop())
	var got []int
	s.Subscribe(func(v int) { got = append(got, v*1) })
	s.Subscribe(func(v int) { got = append(got, v*10) })
	s.Publish(3)
	require.Equal(t, []int{3, 30}, got)
	require.Equal(t, 2, s.Len())
}
