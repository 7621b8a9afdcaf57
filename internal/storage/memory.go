// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// PROFILE HUB
// =============================================================================

// Profile is an in-process stand-in for a browser profile: every backend
// opened from the same Profile shares one key space, and each write is
// fanned out to the watch feeds of every other handle.
type Profile struct {
	mu      sync.Mutex
	data    map[string]string
	seq     int64
	handles map[*MemoryBackend]struct{}
}

// NewProfile creates an empty profile.
func NewProfile() *Profile {
	return &Profile{
		data:    make(map[string]string),
		handles: make(map[*MemoryBackend]struct{}),
	}
}

// Open returns a backend for one tab of the profile.
func (p *Profile) Open(origin string) *MemoryBackend {
	if origin == "" {
		origin = NewOrigin()
	}
	b := &MemoryBackend{profile: p, origin: origin}

	p.mu.Lock()
	p.handles[b] = struct{}{}
	p.mu.Unlock()

	return b
}

// broadcast must be called with p.mu held.
func (p *Profile) broadcast(c Change) {
	for h := range p.handles {
		if h.origin == c.Origin {
			continue
		}
		h.deliver(c)
	}
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend is one tab's handle on a Profile.
type MemoryBackend struct {
	profile *Profile
	origin  string

	mu     sync.Mutex
	feeds  []*feed
	closed bool
}

// NewMemory returns a backend on a private profile. Nothing is shared and
// nothing survives the process.
func NewMemory(origin string) *MemoryBackend {
	return NewProfile().Open(origin)
}

// Name implements Backend.
func (b *MemoryBackend) Name() string { return KindMemory }

// Origin implements Backend.
func (b *MemoryBackend) Origin() string { return b.origin }

// Available implements Backend.
func (b *MemoryBackend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	if !b.Available() {
		return "", false, ErrClosed
	}
	p := b.profile
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return v, ok, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, key, value string) error {
	if !b.Available() {
		return ErrClosed
	}
	p := b.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.data[key]; ok && old == value {
		return nil
	}
	p.data[key] = value
	p.seq++
	p.broadcast(Change{Seq: p.seq, Origin: b.origin, Key: key, Value: value, At: time.Now()})
	return nil
}

// Remove implements Backend.
func (b *MemoryBackend) Remove(_ context.Context, keys ...string) error {
	if !b.Available() {
		return ErrClosed
	}
	p := b.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range keys {
		if _, ok := p.data[key]; !ok {
			continue
		}
		delete(p.data, key)
		p.seq++
		p.broadcast(Change{Seq: p.seq, Origin: b.origin, Key: key, Removed: true, At: time.Now()})
	}
	return nil
}

// Keys implements Backend.
func (b *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	if !b.Available() {
		return nil, ErrClosed
	}
	p := b.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	var keys []string
	for k := range p.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch implements Backend.
func (b *MemoryBackend) Watch(ctx context.Context) (<-chan Change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	f := newFeed()
	b.feeds = append(b.feeds, f)
	go f.run(ctx)
	go func() {
		<-ctx.Done()
		b.dropFeed(f)
	}()
	return f.out, nil
}

// Close implements Backend. The shared profile data is left intact.
func (b *MemoryBackend) Close() error {
	b.profile.mu.Lock()
	delete(b.profile.handles, b)
	b.profile.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, f := range b.feeds {
		f.close()
	}
	b.feeds = nil
	return nil
}

func (b *MemoryBackend) deliver(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.feeds {
		f.push(c)
	}
}

func (b *MemoryBackend) dropFeed(target *feed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.feeds {
		if f == target {
			b.feeds = append(b.feeds[:i], b.feeds[i+1:]...)
			f.close()
			return
		}
	}
}
