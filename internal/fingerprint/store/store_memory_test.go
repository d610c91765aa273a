package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"muniapi/pkg/domain"
)

type InMemoryCacheSuite struct {
	suite.Suite
	cache *InMemoryCache
	ctx   context.Context
}

func TestInMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCacheSuite))
}

func (s *InMemoryCacheSuite) SetupTest() {
	s.cache = NewInMemoryCache()
	s.ctx = context.Background()
}

func (s *InMemoryCacheSuite) TestMissOnUnknownID() {
	hash, ok, err := s.cache.Get(s.ctx, domain.NewCanonicalID())
	s.Require().NoError(err)
	s.False(ok)
	s.Empty(hash)
}

func (s *InMemoryCacheSuite) TestPutThenGet() {
	id := domain.NewCanonicalID()
	s.Require().NoError(s.cache.Put(s.ctx, id, "abc"))

	hash, ok, err := s.cache.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("abc", hash)
}

func (s *InMemoryCacheSuite) TestPutOverwrites() {
	id := domain.NewCanonicalID()
	s.Require().NoError(s.cache.Put(s.ctx, id, "abc"))
	s.Require().NoError(s.cache.Put(s.ctx, id, "def"))

	hash, _, err := s.cache.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("def", hash)
}

// Readers never observe a value that was not written for that key.
func (s *InMemoryCacheSuite) TestConcurrentPerKeyAtomicity() {
	ids := make([]domain.CanonicalID, 8)
	for i := range ids {
		ids[i] = domain.NewCanonicalID()
	}
	valid := func(i int, h string) bool {
		for v := 0; v < 50; v++ {
			if h == fmt.Sprintf("%d-%d", i, v) {
				return true
			}
		}
		return false
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for v := 0; v < 50; v++ {
				_ = s.cache.Put(s.ctx, id, fmt.Sprintf("%d-%d", i, v))
			}
		}()
		go func() {
			defer wg.Done()
			for v := 0; v < 50; v++ {
				if h, ok, _ := s.cache.Get(s.ctx, id); ok && !valid(i, h) {
					s.Failf("torn read", "key %d saw %q", i, h)
				}
			}
		}()
	}
	wg.Wait()

	for i, id := range ids {
		h, ok, err := s.cache.Get(s.ctx, id)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(fmt.Sprintf("%d-49", i), h)
	}
}
