package services

import (
	"fmt"
	"sync"
)

// keyedMutex serializes mutations per entity: two concurrent admin actions on
// the same attempt (or session, or case) must not interleave, while actions
// on different entities proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func attemptKey(id uint) string {
	return fmt.Sprintf("attempt:%d", id)
}

func sessionKey(id uint) string {
	return fmt.Sprintf("session:%d", id)
}

func caseKey(id uint) string {
	return fmt.Sprintf("case:%d", id)
}

func sessionOpenKey(attemptID uint, mode string) string {
	return fmt.Sprintf("session-open:%d:%s", attemptID, mode)
}
