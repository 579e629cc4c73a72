package generic

import (
	"sort"
	"sync"
)

// =============================================================================
// KEYED MUTEX - Per-key write serialization
// =============================================================================

// KeyedMutex serializes work per key instead of globally. Two creates for
// the same assignee queue up; creates for different assignees do not.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires every key and returns the matching unlock func.
// Keys are deduplicated and taken in sorted order so that two callers
// locking overlapping key sets cannot deadlock.
func (km *KeyedMutex) Lock(keys ...string) (unlock func()) {
	sorted := dedupSorted(keys)

	held := make([]*keyedLock, 0, len(sorted))
	for _, k := range sorted {
		l := km.acquire(k)
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			km.release(sorted[i])
		}
	}
}

func (km *KeyedMutex) acquire(key string) *keyedLock {
	km.mu.Lock()
	defer km.mu.Unlock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	return l
}

func (km *KeyedMutex) release(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()
	l := km.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
}

func dedupSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
