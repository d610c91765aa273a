package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"muniapi/internal/content"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

// InMemoryStore keeps entities in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	entities map[domain.CanonicalID]*content.Entity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entities: make(map[domain.CanonicalID]*content.Entity)}
}

func (s *InMemoryStore) Put(_ context.Context, e *content.Entity) error {
	if e == nil || e.ID.IsNil() {
		return fmt.Errorf("entity without id: %w", domain.ErrInvalidID)
	}
	stored := *e
	stored.Data = maps.Clone(e.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = &stored
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.CanonicalID) (*content.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, sentinel.ErrNotFound)
	}
	out := *e
	return &out, nil
}
