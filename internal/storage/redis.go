// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisOpTimeout bounds every single redis round trip.
const redisOpTimeout = 5 * time.Second

// =============================================================================
// REDIS BACKEND
// =============================================================================

// RedisBackend keeps the origin's keys under a namespace prefix and announces
// every mutation on a pub/sub channel, which sibling tabs subscribe to.
type RedisBackend struct {
	client    *redis.Client
	namespace string
	origin    string
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	subs   []*redis.PubSub
}

// OpenRedis connects to the redis server at url and verifies it with a ping.
func OpenRedis(ctx context.Context, url, namespace, origin string, log zerolog.Logger) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opt.PoolSize = 4
	opt.MinIdleConns = 1
	opt.DialTimeout = redisOpTimeout
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedis(client, namespace, origin, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, namespace, origin string, log zerolog.Logger) *RedisBackend {
	if namespace == "" {
		namespace = "tabsession"
	}
	if origin == "" {
		origin = NewOrigin()
	}
	return &RedisBackend{
		client:    client,
		namespace: strings.TrimSuffix(namespace, ":") + ":",
		origin:    origin,
		log:       log.With().Str("component", "storage.redis").Logger(),
	}
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return KindRedis }

// Origin implements Backend.
func (r *RedisBackend) Origin() string { return r.origin }

// Available implements Backend.
func (r *RedisBackend) Available() bool {
	if r.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

func (r *RedisBackend) key(k string) string { return r.namespace + "kv:" + k }
func (r *RedisBackend) channel() string     { return r.namespace + "changes" }
func (r *RedisBackend) seqKey() string      { return r.namespace + "seq" }

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if r.isClosed() {
		return "", false, ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// Set implements Backend.
func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	if r.isClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	old, err := r.client.Get(ctx, r.key(key)).Result()
	if err == nil && old == value {
		return nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("set %q: %w", key, err)
	}

	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return r.publish(ctx, Change{Key: key, Value: value})
}

// Remove implements Backend.
func (r *RedisBackend) Remove(ctx context.Context, keys ...string) error {
	if r.isClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	for _, key := range keys {
		n, err := r.client.Del(ctx, r.key(key)).Result()
		if err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		if n == 0 {
			continue
		}
		if err := r.publish(ctx, Change{Key: key, Removed: true}); err != nil {
			return err
		}
	}
	return nil
}

// Keys implements Backend.
func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	base := r.key("")
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(base+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), base)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Watch implements Backend.
func (r *RedisBackend) Watch(ctx context.Context) (<-chan Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	sub := r.client.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	r.subs = append(r.subs, sub)

	f := newFeed()
	go f.run(ctx)
	go func() {
		defer f.close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					r.log.Debug().Err(err).Msg("dropping malformed change message")
					continue
				}
				if c.Origin == r.origin {
					continue
				}
				f.push(c)
			}
		}
	}()
	return f.out, nil
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return r.client.Close()
}

func (r *RedisBackend) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *RedisBackend) publish(ctx context.Context, c Change) error {
	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("publish %q: %w", c.Key, err)
	}
	c.Seq = seq
	c.Origin = r.origin
	c.At = time.Now()

	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish %q: %w", c.Key, err)
	}
	return nil
}
