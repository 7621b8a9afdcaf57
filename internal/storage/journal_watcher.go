// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// JOURNAL WATCHER
// =============================================================================

// journalWatcher tails the changes journal of a SQLiteBackend. It is woken by
// fsnotify events on the signal file and falls back to polling when fsnotify
// cannot be set up.
type journalWatcher struct {
	store *SQLiteBackend
	feed  *feed

	mu   sync.Mutex
	head int64

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newJournalWatcher(store *SQLiteBackend, head int64) *journalWatcher {
	return &journalWatcher{
		store: store,
		feed:  newFeed(),
		head:  head,
	}
}

// start launches the feed and the fsnotify (or polling) loop.
func (w *journalWatcher) start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel

	go w.feed.run(ctx)

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: the signal file may not exist yet.
		if err = fw.Add(filepath.Dir(w.store.signalPath)); err != nil {
			fw.Close()
		}
	}

	w.wg.Add(1)
	if err == nil {
		w.watcher = fw
		go w.processEvents(ctx)
	} else {
		w.store.log.Debug().Err(err).Msg("fsnotify unavailable, polling store journal")
		go w.poll(ctx)
	}

	go func() {
		<-ctx.Done()
		w.feed.close()
	}()
	return nil
}

// processEvents reacts to writes of the signal file.
func (w *journalWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.store.log.Error().Interface("panic", r).Msg("journal watcher panicked")
		}
	}()

	// Slow safety poll in case an event is coalesced away.
	ticker := time.NewTicker(10 * w.store.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.store.signalPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.drain(ctx)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.log.Debug().Err(err).Msg("journal watcher error")

		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// poll periodically checks the journal.
func (w *journalWatcher) poll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.store.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain pushes every journal row past head to the feed.
func (w *journalWatcher) drain(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	changes, head, err := w.store.changesSince(ctx, w.head)
	if err != nil {
		if ctx.Err() == nil {
			w.store.log.Debug().Err(err).Msg("failed to read store journal")
		}
		return
	}
	w.head = head
	for _, c := range changes {
		w.feed.push(c)
	}
}

// Close stops watching and releases resources.
func (w *journalWatcher) Close() error {
	w.cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}
