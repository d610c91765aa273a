// Package identifier maps source-specific external ids onto gateway-minted
// canonical ids. A canonical id, once handed out, is stable for the lifetime
// of the store and never reused for another external id.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"muniapi/internal/identifier/metrics"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

// ErrStore wraps every failure of the backing store.
var ErrStore = errors.New("identifier store failure")

// Store persists the mapping. CreateIfAbsent must be atomic per external id:
// when two callers race, both observe the same canonical id and exactly one
// sees created=true.
type Store interface {
	Find(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error)
	CreateIfAbsent(ctx context.Context, ext domain.ExternalID, candidate domain.CanonicalID) (domain.CanonicalID, bool, error)
	FindExternal(ctx context.Context, id domain.CanonicalID) (domain.ExternalID, error)
	FindExternalMany(ctx context.Context, ids []domain.CanonicalID) (map[domain.CanonicalID]domain.ExternalID, error)
}

// Registry is the identifier service.
type Registry struct {
	store   Store
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	mint    func() domain.CanonicalID
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// WithMinter replaces the canonical id generator (tests).
func WithMinter(mint func() domain.CanonicalID) Option {
	return func(r *Registry) {
		r.mint = mint
	}
}

func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("muniapi/identifier"),
		mint:   domain.NewCanonicalID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical id of ext, minting and persisting one on first
// sight. Concurrent calls for the same ext within this process share a single
// store round trip; across processes the store's create-if-absent decides.
func (r *Registry) Resolve(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error) {
	if ext.IsZero() || !ext.Type.IsValid() {
		return "", fmt.Errorf("resolve %q: %w", ext.Key(), domain.ErrInvalidID)
	}
	ctx, span := r.tracer.Start(ctx, "identifier.Resolve", trace.WithAttributes(
		attribute.String("entity.type", ext.Type.String()),
		attribute.String("entity.source", ext.Source),
	))
	defer span.End()

	id, err := r.store.Find(ctx, ext)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return "", r.storeFailure(ctx, span, ext, err)
	}

	// the shared call must not die with whichever caller arrived first
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(ext.Key(), func() (any, error) {
		id, created, err := r.store.CreateIfAbsent(shared, ext, r.mint())
		if err != nil {
			return domain.CanonicalID(""), err
		}
		if created {
			if r.metrics != nil {
				r.metrics.IncrementMinted(ext.Type.String())
			}
			r.logger.DebugContext(ctx, "canonical id minted",
				"external_id", ext.Key(),
				"canonical_id", id.String(),
			)
		}
		return id, nil
	})
	if err != nil {
		return "", r.storeFailure(ctx, span, ext, err)
	}
	return v.(domain.CanonicalID), nil
}

// Lookup returns the canonical id of ext without minting.
// Returns sentinel.ErrNotFound when ext has never been resolved.
func (r *Registry) Lookup(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error) {
	id, err := r.store.Find(ctx, ext)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", fmt.Errorf("lookup %s: %w", ext.Key(), sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("lookup %s: %w: %w", ext.Key(), ErrStore, err)
	}
	return id, nil
}

// Reverse returns the external id a canonical id was minted for.
func (r *Registry) Reverse(ctx context.Context, id domain.CanonicalID) (domain.ExternalID, error) {
	ext, err := r.store.FindExternal(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.ExternalID{}, fmt.Errorf("reverse %s: %w", id, sentinel.ErrNotFound)
		}
		return domain.ExternalID{}, fmt.Errorf("reverse %s: %w: %w", id, ErrStore, err)
	}
	return ext, nil
}

// ReverseMany resolves several canonical ids in one store round trip.
// Unknown ids are absent from the result.
func (r *Registry) ReverseMany(ctx context.Context, ids []domain.CanonicalID) (map[domain.CanonicalID]domain.ExternalID, error) {
	if len(ids) == 0 {
		return map[domain.CanonicalID]domain.ExternalID{}, nil
	}
	out, err := r.store.FindExternalMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reverse %d ids: %w: %w", len(ids), ErrStore, err)
	}
	return out, nil
}

func (r *Registry) storeFailure(ctx context.Context, span trace.Span, ext domain.ExternalID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "identifier store failure")
	if r.metrics != nil {
		r.metrics.IncrementResolveErrors(ext.Type.String())
	}
	r.logger.ErrorContext(ctx, "identifier store failure",
		"external_id", ext.Key(),
		"error", err,
	)
	return fmt.Errorf("resolve %s: %w: %w", ext.Key(), ErrStore, err)
}
