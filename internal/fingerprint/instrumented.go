package fingerprint

import (
	"context"

	"muniapi/internal/fingerprint/metrics"
	"muniapi/pkg/domain"
)

// Instrumented counts hits, misses and errors of an underlying Cache.
type Instrumented struct {
	next    Cache
	metrics *metrics.Metrics
}

func NewInstrumented(next Cache, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (c *Instrumented) Put(ctx context.Context, id domain.CanonicalID, hash string) error {
	err := c.next.Put(ctx, id, hash)
	if err != nil {
		c.metrics.IncrementPutErrors()
	}
	return err
}

func (c *Instrumented) Get(ctx context.Context, id domain.CanonicalID) (string, bool, error) {
	hash, ok, err := c.next.Get(ctx, id)
	switch {
	case err != nil:
		c.metrics.ObserveLookup(metrics.ResultError)
	case ok:
		c.metrics.ObserveLookup(metrics.ResultHit)
	default:
		c.metrics.ObserveLookup(metrics.ResultMiss)
	}
	return hash, ok, err
}
