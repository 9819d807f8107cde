package services

import (
	"sort"
	"sync"
)

// keyLocker serialises work per key (e.g. "task:<id>"). Entries live only
// while someone holds or waits on them.
type keyLocker struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	enabled bool
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocker(enabled bool) *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock), enabled: enabled}
}

func (l *keyLocker) lockKeys(keys ...string) func() {
	if !l.enabled || len(keys) == 0 {
		return func() {}
	}
	keys = append([]string(nil), keys...)
	sort.Strings(keys)

	l.mu.Lock()
	held := make([]string, 0, len(keys))
	acquired := make([]*keyLock, 0, len(keys))
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		m := l.locks[k]
		if m == nil {
			m = &keyLock{}
			l.locks[k] = m
		}
		m.refs++
		held = append(held, k)
		acquired = append(acquired, m)
	}
	l.mu.Unlock()

	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
		l.mu.Lock()
		for i, k := range held {
			m := acquired[i]
			m.refs--
			if m.refs == 0 {
				delete(l.locks, k)
			}
		}
		l.mu.Unlock()
	}
}

func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func taskKey(id string) string {
	return "task:" + id
}
