// Package cache stores serialized catalog responses for a bounded time.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache stores opaque payloads by key.
type Cache interface {
	// Get returns the payload and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores payload for ttl. A non-positive ttl skips the write.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return "storefront:" + strings.Join(parts, "|")
}

// Memory is an in-process Cache with per-entry expiry.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: map[string]memoryEntry{}, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expires) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expires.Equal(entry.expires) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryEntry{
		payload: append([]byte(nil), payload...),
		expires: m.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
