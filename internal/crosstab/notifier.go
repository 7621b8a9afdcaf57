// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package crosstab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/storage"
)

// ErrStarted is returned by Start on a running notifier.
var ErrStarted = errors.New("notifier already started")

// Event is a change another tab made to the shared store.
type Event struct {
	Key     string
	Value   string
	Removed bool
	Origin  string
	At      time.Time
}

// Notifier fans sibling-tab writes out to subscribers.
type Notifier struct {
	backend storage.Backend
	subs    *Subscribers[Event]
	log     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier over backend. Call Start to begin watching.
func NewNotifier(backend storage.Backend, log zerolog.Logger) *Notifier {
	log = log.With().Str("component", "crosstab").Logger()
	return &Notifier{
		backend: backend,
		subs:    NewSubscribers[Event](log),
		log:     log,
	}
}

// Subscribe registers fn for sibling-tab changes.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	return n.subs.Subscribe(fn)
}

// Start begins watching the backend. It returns once the watch is
// established; events are delivered on a notifier goroutine, in order.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return ErrStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, err := n.backend.Watch(ctx)
	if err != nil {
		cancel()
		return err
	}

	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(ctx, changes, n.done)

	n.log.Debug().Str("backend", n.backend.Name()).Str("origin", n.backend.Origin()).Msg("watching for sibling tabs")
	return nil
}

func (n *Notifier) run(ctx context.Context, changes <-chan storage.Change, done chan struct{}) {
	defer close(done)
	own := n.backend.Origin()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			// Backends already filter, but a shared profile opened twice
			// with the same origin must still not echo.
			if c.Origin == own {
				continue
			}
			n.subs.Publish(Event{
				Key:     c.Key,
				Value:   c.Value,
				Removed: c.Removed,
				Origin:  c.Origin,
				At:      c.At,
			})
		}
	}
}

// Close stops watching and waits for the delivery goroutine. Subscribers are
// kept; Start may be called again.
func (n *Notifier) Close() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
