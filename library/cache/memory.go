package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	raw      []byte
	expireAt time.Time
}

// Memory is an in-process LRU cache.
// Values are stored JSON encoded, so callers never share memory with it.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
	ttl time.Duration
	now func() time.Time
}

// NewMemory creates a cache of at most size entries, each living at most ttl.
func NewMemory(size int, ttl time.Duration) (*Memory, error) {
	if size <= 0 {
		return nil, errors.Errorf("cache size must be positive, got %d", size)
	}
	if ttl <= 0 {
		return nil, errors.Errorf("cache ttl must be positive, got %s", ttl)
	}

	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string, out any) (bool, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return false, nil
	}
	if !entry.expireAt.IsZero() && !m.now().Before(entry.expireAt) {
		m.lru.Remove(key)
		return false, nil
	}

	if err := json.Unmarshal(entry.raw, out); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}

	return true, nil
}

// Set implements Cache. A ttl longer than the cache ttl is capped by it.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}

	entry := memoryEntry{raw: raw}
	if ttl > 0 && ttl < m.ttl {
		entry.expireAt = m.now().Add(ttl)
	}

	m.lru.Add(key, entry)
	return nil
}

// Del implements Cache.
func (m *Memory) Del(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}
