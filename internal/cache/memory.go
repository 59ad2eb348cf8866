package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMaxEntries = 1000

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

// MemoryCache is a process-local Cache that evicts the entry expiring soonest when full.
type MemoryCache struct {
	mu         sync.Mutex
	data       map[string]*memoryItem
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries values.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		data:       make(map[string]*memoryItem),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !mc.now().Before(item.expireAt) {
		delete(mc.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxEntries {
		mc.evictLocked()
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	mc.data[key] = &memoryItem{
		value:    append([]byte(nil), value...),
		expireAt: mc.now().Add(ttl),
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) Close() error {
	return nil
}

func (mc *MemoryCache) evictLocked() {
	var victim string
	var earliest time.Time
	for key, item := range mc.data {
		if victim == "" || item.expireAt.Before(earliest) {
			victim, earliest = key, item.expireAt
		}
	}
	delete(mc.data, victim)
}
