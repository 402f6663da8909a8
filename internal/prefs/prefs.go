// Package prefs persists small host flags across restarts.
package prefs

import "sync"

// Store is a key to boolean store that survives process restarts.
type Store interface {
	// GetBool returns the stored value of key, or def when unset.
	GetBool(key string, def bool) (bool, error)
	// SetBool stores value under key.
	SetBool(key string, value bool) error
	Close() error
}

// MemoryStore keeps flags in memory. Useful for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]bool)}
}

func (m *MemoryStore) GetBool(key string, def bool) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (m *MemoryStore) SetBool(key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }
