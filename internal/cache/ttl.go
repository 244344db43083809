// Package cache provides a keyed TTL cache for upstream lookups.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUpstreamFetchFailed wraps any error returned by a fetch function.
var ErrUpstreamFetchFailed = errors.New("upstream fetch failed")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Recorder receives hit/miss outcomes. Implemented by metrics.Metrics.
type Recorder interface {
	ObserveCache(cache string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCache(string, bool) {}

// Entry is a cached value and the time it was fetched.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Live reports whether e is still fresh at now.
func (e Entry[V]) Live(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Options configures a TTL cache. Zero values select defaults.
type Options struct {
	Clock    Clock
	Recorder Recorder
}

// TTL is a map of entries that expire ttl after they were fetched. The ttl is
// supplied per lookup so one cache can serve data with different lifetimes.
//
// Keys are never evicted on their own; call PruneExpired periodically.
type TTL[K comparable, V any] struct {
	name  string
	clock Clock
	rec   Recorder
	group singleflight.Group

	mu      sync.RWMutex
	entries map[K]Entry[V]
}

// New creates an empty cache. name labels its metrics.
func New[K comparable, V any](name string, opts Options) *TTL[K, V] {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &TTL[K, V]{
		name:    name,
		clock:   opts.Clock,
		rec:     opts.Recorder,
		entries: make(map[K]Entry[V]),
	}
}

// GetOrFetch returns the live entry for key, or calls fetch and stores its
// result. Concurrent misses for the same key share a single fetch. The shared
// fetch runs detached from any one caller's cancellation, keeping its values;
// fetch must bound itself. A caller whose ctx ends stops waiting and gets
// ctx.Err() without affecting the others. On fetch failure any stale entry is
// left in place and the error wraps ErrUpstreamFetchFailed.
func (c *TTL[K, V]) GetOrFetch(ctx context.Context, key K, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	var zero V
	if e, ok := c.live(key, ttl); ok {
		c.rec.ObserveCache(c.name, true)
		return e.Value, nil
	}
	c.rec.ObserveCache(c.name, false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprint(key), func() (any, error) {
		if e, ok := c.live(key, ttl); ok {
			return e.Value, nil
		}
		val, err := fetch(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamFetchFailed, err)
		}
		c.set(key, Entry[V]{Value: val, FetchedAt: c.clock.Now()})
		return val, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns the stored entry for key whether or not it has expired.
func (c *TTL[K, V]) Peek(key K) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Invalidate removes key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PruneExpired drops entries older than ttl and returns how many were removed.
func (c *TTL[K, V]) PruneExpired(ttl time.Duration) int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !e.Live(now, ttl) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *TTL[K, V]) live(key K, ttl time.Duration) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !e.Live(c.clock.Now(), ttl) {
		return Entry[V]{}, false
	}
	return e, true
}

// set stores e unless a newer entry is already present.
func (c *TTL[K, V]) set(key K, e Entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.FetchedAt.After(e.FetchedAt) {
		return
	}
	c.entries[key] = e
}
