// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package crosstab

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Subscribers is a set of callbacks invoked in registration order. A
// callback that panics is logged and skipped; the rest still run.
type Subscribers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	order  []uint64
	fns    map[uint64]func(T)
	log    zerolog.Logger
}

// NewSubscribers creates an empty set.
func NewSubscribers[T any](log zerolog.Logger) *Subscribers[T] {
	return &Subscribers[T]{fns: make(map[uint64]func(T)), log: log}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (s *Subscribers[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.fns[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subscribers[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fns, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of subscribers.
func (s *Subscribers[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Publish calls every subscriber with v. Callbacks run outside the lock so
// they may subscribe or unsubscribe.
func (s *Subscribers[T]) Publish(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.call(fn, v)
	}
}

func (s *Subscribers[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("subscriber panicked")
		}
	}()
	fn(v)
}
