package engine

import "sync"

// keyedMutex serialises reconciliation runs per (symbol, positionSide).
// Concurrent signals for the same key would both observe a missing
// protective limit and double the entry; holding the key for the whole
// sequence closes that race. Mutexes are never removed: the key space is
// bounded by the set of traded symbols.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
