// Package providers defines the port to upstream source systems (content
// management sites, service registries, event listings) and a registry of
// configured providers keyed by source name.
package providers

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"muniapi/pkg/domain"
)

// Capabilities describes what a provider can fetch.
type Capabilities struct {
	Types []domain.EntityType
}

// Supports reports whether the provider serves entities of type t.
func (c Capabilities) Supports(t domain.EntityType) bool {
	return slices.Contains(c.Types, t)
}

// RawEntity is one upstream record as fetched, before any mapping.
type RawEntity struct {
	ID domain.ExternalID
	// Payload is the decoded structured record.
	Payload map[string]any
	// Data holds raw content for binary entities (attachments); nil otherwise.
	Data        []byte
	ContentType string
	// Children are entities discovered inside the record, e.g. featured media.
	Children  []domain.ExternalID
	FetchedAt time.Time
}

// Binary reports whether the entity should be fingerprinted from raw bytes.
func (e *RawEntity) Binary() bool {
	return e.Data != nil
}

// Provider is implemented by every upstream source client.
type Provider interface {
	// ID returns the source name used in ExternalID.Source.
	ID() string
	Capabilities() Capabilities
	// Fetch loads one entity. organization selects per-municipality settings
	// and may be empty.
	Fetch(ctx context.Context, id domain.ExternalID, organization string) (*RawEntity, error)
	Health(ctx context.Context) error
}

// ProviderRegistry maintains the registered providers by source.
type ProviderRegistry struct {
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register adds a provider. Registration happens at wiring time only.
func (r *ProviderRegistry) Register(p Provider) error {
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.providers[id] = p
	return nil
}

// Get retrieves a provider by source.
func (r *ProviderRegistry) Get(source string) (Provider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", source, ErrProviderNotFound)
	}
	return p, nil
}

// All returns providers sorted by source.
func (r *ProviderRegistry) All() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
