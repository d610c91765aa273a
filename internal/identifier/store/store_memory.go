package store

import (
	"context"
	"sync"

	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

const shardCount = 32

type shard struct {
	mu  sync.RWMutex
	ids map[domain.ExternalID]domain.CanonicalID
}

// InMemoryStore is the development and test identifier store. Forward
// mappings are sharded by ExternalID.Hash so unrelated ids never contend.
type InMemoryStore struct {
	shards  [shardCount]*shard
	reverse sync.Map // domain.CanonicalID -> domain.ExternalID
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{ids: make(map[domain.ExternalID]domain.CanonicalID)}
	}
	return s
}

func (s *InMemoryStore) shardFor(ext domain.ExternalID) *shard {
	return s.shards[ext.Hash()%shardCount]
}

func (s *InMemoryStore) Find(_ context.Context, ext domain.ExternalID) (domain.CanonicalID, error) {
	sh := s.shardFor(ext)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	id, ok := sh.ids[ext]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return id, nil
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, ext domain.ExternalID, candidate domain.CanonicalID) (domain.CanonicalID, bool, error) {
	sh := s.shardFor(ext)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if id, ok := sh.ids[ext]; ok {
		return id, false, nil
	}
	if _, taken := s.reverse.LoadOrStore(candidate, ext); taken {
		return "", false, sentinel.ErrConflict
	}
	sh.ids[ext] = candidate
	return candidate, true, nil
}

func (s *InMemoryStore) FindExternal(_ context.Context, id domain.CanonicalID) (domain.ExternalID, error) {
	v, ok := s.reverse.Load(id)
	if !ok {
		return domain.ExternalID{}, sentinel.ErrNotFound
	}
	return v.(domain.ExternalID), nil
}

func (s *InMemoryStore) FindExternalMany(_ context.Context, ids []domain.CanonicalID) (map[domain.CanonicalID]domain.ExternalID, error) {
	out := make(map[domain.CanonicalID]domain.ExternalID, len(ids))
	for _, id := range ids {
		if v, ok := s.reverse.Load(id); ok {
			out[id] = v.(domain.ExternalID)
		}
	}
	return out, nil
}
