// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
)

// feed is an unbounded, ordered queue drained into a channel by one goroutine.
// Producers never block, so a slow subscriber in one tab cannot stall writes
// made by another.
type feed struct {
	mu     sync.Mutex
	queue  []Change
	closed bool
	wake   chan struct{}
	out    chan Change
}

func newFeed() *feed {
	return &feed{
		wake: make(chan struct{}, 1),
		out:  make(chan Change),
	}
}

// push appends a change. Pushes after close are dropped.
func (f *feed) push(c Change) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, c)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// close stops accepting changes; run exits once the queue is drained or ctx ends.
func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// run delivers queued changes to out until ctx is done or the feed is closed.
func (f *feed) run(ctx context.Context) {
	defer close(f.out)

	for {
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		closed := f.closed
		f.mu.Unlock()

		for _, c := range batch {
			select {
			case f.out <- c:
			case <-ctx.Done():
				return
			}
		}

		if closed {
			return
		}

		select {
		case <-f.wake:
		case <-ctx.Done():
			return
		}
	}
}
