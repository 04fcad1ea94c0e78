// Package keylock provides context-aware mutual exclusion per key.
package keylock

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes work per key. Entries are reference counted and dropped
// once nobody holds or waits for them, so the key space may be unbounded.
type Locker[K comparable] struct {
	mu    sync.Mutex
	less  func(a, b K) bool
	locks map[K]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// New creates a Locker. less defines the canonical order used by LockAll.
func New[K comparable](less func(a, b K) bool) *Locker[K] {
	return &Locker[K]{less: less, locks: make(map[K]*entry)}
}

func (l *Locker[K]) ref(key K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Locker[K]) unref(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (l *Locker[K]) Lock(ctx context.Context, key K) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := l.ref(key)
	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.unref(key, e)
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

// LockAll acquires every distinct key in canonical order so that two multi-key
// callers can never wait on each other in a cycle. Release happens in reverse.
func (l *Locker[K]) LockAll(ctx context.Context, keys []K) (func(), error) {
	ordered := l.Canonical(keys)
	releases := make([]func(), 0, len(ordered))
	unlockAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range ordered {
		release, err := l.Lock(ctx, key)
		if err != nil {
			unlockAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return unlockAll, nil
}

// Canonical returns the distinct keys in lock order.
func (l *Locker[K]) Canonical(keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return l.less(out[i], out[j]) })
	return out
}

// Held returns the number of keys currently tracked. Used in tests.
func (l *Locker[K]) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
