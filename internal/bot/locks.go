package bot

import "sync"

// Locks is a keyed mutex registry. Every component that mutates the same
// bot (deploy pipeline, supervisor, deletion) acquires the bot's lock
// here, so mutating operations on one bot are serialized across packages.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// Get returns the lock for a key, creating it on first use. The same key
// always yields the same mutex until Forget is called.
func (l *Locks) Get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[key]
	if !ok {
		m = &sync.Mutex{}
		l.m[key] = m
	}
	return m
}

// Forget drops a key's entry. Callers still holding the mutex may unlock
// it normally; a later Get for the key yields a fresh lock.
func (l *Locks) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, key)
}
