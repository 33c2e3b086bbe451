package draft

import (
	"context"
	"sync"
)

// MemoryStore keeps drafts in process
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]Draft
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]Draft{}}
}

func memoryKey(owner, key string) string {
	return owner + "/" + key
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, owner, key string) (*Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.drafts[memoryKey(owner, key)]
	if !ok {
		return nil, ErrNotFound
	}

	return &d, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drafts[memoryKey(d.Owner, d.Key)] = *d
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, owner, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.drafts, memoryKey(owner, key))
	return nil
}
