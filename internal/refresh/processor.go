// Package refresh implements the body of an update tick: fetch an entity
// from its source, map it to a canonical id, store it and record its
// modification fingerprint.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"muniapi/internal/content"
	"muniapi/internal/fingerprint"
	"muniapi/internal/platform/config"
	"muniapi/internal/providers"
	"muniapi/internal/updater"
	"muniapi/pkg/domain"
)

// Resolver maps external ids to canonical ids.
type Resolver interface {
	Resolve(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error)
}

// IndexSink receives the serialized form of every refreshed structured
// entity, e.g. for a search indexer.
type IndexSink interface {
	Index(ctx context.Context, id domain.CanonicalID, t domain.EntityType, body []byte) error
}

// Processor refreshes entities of any type; one instance is shared by all
// schedulers.
type Processor struct {
	providers *providers.ProviderRegistry
	ids       Resolver
	cache     fingerprint.Cache
	content   content.Store
	index     IndexSink
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithIndexSink(sink IndexSink) Option {
	return func(p *Processor) {
		p.index = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(registry *providers.ProviderRegistry, ids Resolver, cache fingerprint.Cache, store content.Store, opts ...Option) *Processor {
	p := &Processor{
		providers: registry,
		ids:       ids,
		cache:     cache,
		content:   store,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process refreshes the request target and then its children. Children are
// refreshed in the same call; their failures are logged and do not fail the
// parent.
func (p *Processor) Process(ctx context.Context, req updater.Request) error {
	organization := Organization(req)

	raw, err := p.refresh(ctx, req.Target, organization)
	if err != nil {
		return err
	}

	for _, child := range raw.Children {
		if _, err := p.refresh(ctx, child, organization); err != nil {
			p.logger.WarnContext(ctx, "child refresh failed",
				"parent", req.Target.Key(),
				"child", child.Key(),
				"error_kind", string(updater.ErrorKind(err)),
				"error", err,
			)
		}
	}
	return nil
}

// Organization returns the municipality a request was discovered under, or
// "" when it has no organization parent.
func Organization(req updater.Request) string {
	if req.Parent != nil && req.Parent.Type == domain.EntityOrganization {
		return req.Parent.LocalID
	}
	return ""
}

// ConfiguredFilter accepts only requests whose source resolves to a base URL
// for the request's organization.
func ConfiguredFilter(sources *config.Sources) updater.AcceptFunc {
	return func(req updater.Request) bool {
		return sources.Configured(req.Target.Source, Organization(req))
	}
}

func (p *Processor) refresh(ctx context.Context, ext domain.ExternalID, organization string) (*providers.RawEntity, error) {
	provider, err := p.providers.Get(ext.Source)
	if err != nil {
		return nil, err
	}
	if !provider.Capabilities().Supports(ext.Type) {
		return nil, providers.NewProviderError(providers.ErrorNotFound, provider.ID(),
			fmt.Sprintf("entity type %s not served", ext.Type), nil)
	}

	raw, err := provider.Fetch(ctx, ext, organization)
	if err != nil {
		return nil, err
	}

	id, err := p.ids.Resolve(ctx, ext)
	if err != nil {
		return nil, err
	}

	var (
		hash string
		body []byte
	)
	if raw.Binary() {
		hash = fingerprint.OfBytes(raw.Data)
	} else {
		body, err = fingerprint.Serialize(raw.Payload)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", ext.Key(), err)
		}
		hash = fingerprint.OfBytes(body)
	}

	entity := &content.Entity{
		ID:          id,
		Type:        ext.Type,
		Source:      ext.Source,
		SourceID:    ext.LocalID,
		ContentType: raw.ContentType,
		Size:        len(raw.Data),
		Data:        raw.Payload,
		UpdatedAt:   p.now(),
	}
	if err := p.content.Put(ctx, entity); err != nil {
		return nil, fmt.Errorf("store content %s: %w", ext.Key(), err)
	}
	if err := p.cache.Put(ctx, id, hash); err != nil {
		return nil, fmt.Errorf("store fingerprint %s: %w", ext.Key(), err)
	}

	if p.index != nil && body != nil {
		if err := p.index.Index(ctx, id, ext.Type, body); err != nil {
			p.logger.WarnContext(ctx, "index handoff failed",
				"target", ext.Key(),
				"error", err,
			)
		}
	}

	p.logger.DebugContext(ctx, "entity refreshed",
		"target", ext.Key(),
		"id", id.String(),
		"fingerprint", hash,
	)
	return raw, nil
}
