package session

import (
	"context"
	"time"

	"loancalc/internal/cache"
)

// MemoryStore keeps encoded sessions in a bounded idle-TTL LRU cache.
// Encoded bytes are stored so callers never share a live *State.
type MemoryStore struct {
	items *cache.LRUCache[[]byte]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxSessions sessions,
// each dropped after ttl without access.
func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{items: cache.NewLRUCache[[]byte](maxSessions, ttl)}
}

// Cache exposes the underlying cache so a cache.Manager can sweep it.
func (s *MemoryStore) Cache() *cache.LRUCache[[]byte] { return s.items }

func (s *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	data, ok := s.items.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return Decode(data)
}

func (s *MemoryStore) Save(_ context.Context, id string, st *State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	s.items.Set(id, data)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.items.Delete(id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int { return s.items.Size() }
