package collectionrepo

import (
	"context"
	"sync"

	"shiyin/internal/collection"
)

// MemoryStore keeps encoded snapshots so callers never share item slices.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, owner string) ([]collection.Item, error) {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.data[owner]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeItems(raw)
}

func (s *MemoryStore) Save(_ context.Context, owner string, items []collection.Item) error {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return err
	}
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[owner] = raw
	return nil
}
