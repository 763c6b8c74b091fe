package statestore

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// MemStore is a sharded in-memory TTL store. It backs tests and single-node
// deployments that do not need state to survive a restart.
type MemStore struct {
	shards [numShards]*memShard
	now    func() time.Time
}

type memShard struct {
	mu    sync.RWMutex
	items map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemStore creates an in-memory store.
func NewMemStore() *MemStore {
	s := &MemStore{now: time.Now}
	for i := 0; i < numShards; i++ {
		s.shards[i] = &memShard{items: make(map[string]memEntry)}
	}
	return s
}

func (s *MemStore) getShard(key string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

// Get returns the value for key; expired entries read as absent.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	shard := s.getShard(key)
	shard.mu.RLock()
	entry, ok := shard.items[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.now()) {
		shard.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have replaced
		// the entry since the read lock was dropped.
		cur, ok := shard.items[key]
		if ok && (cur.expiresAt.IsZero() || cur.expiresAt.After(s.now())) {
			shard.mu.Unlock()
			return cur.value, true, nil
		}
		if ok {
			delete(shard.items, key)
		}
		shard.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value with an optional TTL.
func (s *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	shard := s.getShard(key)
	shard.mu.Lock()
	shard.items[key] = entry
	shard.mu.Unlock()
	return nil
}

// Delete removes a key.
func (s *MemStore) Delete(_ context.Context, key string) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
	return nil
}

// Len returns total live items across all shards.
func (s *MemStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes expired entries and reports how many were dropped.
func (s *MemStore) Cleanup() int {
	removed := 0
	now := s.now()
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, entry := range shard.items {
			if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
