package store

import (
	"context"
	"sync"

	"muniapi/pkg/domain"
)

// InMemoryCache keeps fingerprints in a sync.Map. Writers to one key never
// block readers or writers of another.
type InMemoryCache struct {
	hashes sync.Map // domain.CanonicalID -> string
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{}
}

func (c *InMemoryCache) Put(_ context.Context, id domain.CanonicalID, hash string) error {
	c.hashes.Store(id, hash)
	return nil
}

func (c *InMemoryCache) Get(_ context.Context, id domain.CanonicalID) (string, bool, error) {
	v, ok := c.hashes.Load(id)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}
