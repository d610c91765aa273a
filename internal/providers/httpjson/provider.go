// Package httpjson fetches entities from REST sources that expose
// <base>/<type path>/<local id> as JSON, the shape shared by the WordPress
// style content sites and most municipal registries.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"muniapi/internal/platform/config"
	"muniapi/internal/providers"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/circuit"
	"muniapi/pkg/platform/sentinel"
)

// defaultMaxBodyBytes caps JSON and binary downloads.
const defaultMaxBodyBytes = 32 << 20

// Provider is a rate limited, circuit broken JSON source client.
type Provider struct {
	source   string
	sources  *config.Sources
	settings config.Source
	children map[string]domain.EntityType
	types    []domain.EntityType

	client  *http.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	logger  *slog.Logger
	now     func() time.Time
	maxBody int64
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Provider) {
		p.breaker = b
	}
}

// WithMaxBodyBytes overrides the download cap. Larger bodies fail as bad data.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

// WithTypes limits the entity types the provider claims to serve.
func WithTypes(types ...domain.EntityType) Option {
	return func(p *Provider) {
		p.types = types
	}
}

// New builds a provider for source from the loaded settings.
func New(source string, sources *config.Sources, opts ...Option) (*Provider, error) {
	settings, ok := sources.Lookup(source)
	if !ok {
		return nil, fmt.Errorf("source %s: %w", source, sentinel.ErrNotConfigured)
	}
	children, err := settings.ChildTypes()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source, err)
	}

	limit := rate.Inf
	if settings.RequestsPerSecond > 0 {
		limit = rate.Limit(settings.RequestsPerSecond)
	}
	burst := settings.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &Provider{
		source:   source,
		sources:  sources,
		settings: settings,
		children: children,
		types:    domain.EntityTypes(),
		client:   &http.Client{Timeout: settings.Timeout()},
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  circuit.New(source, circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:   slog.Default(),
		now:      time.Now,
		maxBody:  defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) ID() string {
	return p.source
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Types: p.types}
}

// Health reports an open circuit as unavailable.
func (p *Provider) Health(context.Context) error {
	if p.breaker.IsOpen() {
		return fmt.Errorf("source %s circuit open: %w", p.source, sentinel.ErrUnavailable)
	}
	return nil
}

func (p *Provider) Fetch(ctx context.Context, id domain.ExternalID, organization string) (*providers.RawEntity, error) {
	base := p.sources.BaseURL(p.source, organization)
	if base == "" {
		return nil, fmt.Errorf("source %s organization %q: %w", p.source, organization, sentinel.ErrNotConfigured)
	}
	endpoint := base + "/" + p.settings.PathFor(id.Type) + "/" + url.PathEscape(id.LocalID)

	body, _, err := p.get(ctx, endpoint, p.apiKey(organization), "application/json")
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, p.source, "decode payload", err)
	}

	entity := &providers.RawEntity{
		ID:        id,
		Payload:   payload,
		Children:  p.childIDs(payload),
		FetchedAt: p.now(),
	}

	if field := p.settings.BinaryField; field != "" {
		if src, ok := payload[field].(string); ok && src != "" {
			// Media often lives on a CDN; the key only goes back to the API host.
			key := ""
			if sameHost(src, base) {
				key = p.apiKey(organization)
			}
			data, contentType, err := p.get(ctx, src, key, "*/*")
			if err != nil {
				return nil, err
			}
			entity.Data = data
			entity.ContentType = contentType
		}
	}
	return entity, nil
}

// childIDs extracts child references. Zero, empty and negative ids mean "none".
func (p *Provider) childIDs(payload map[string]any) []domain.ExternalID {
	var out []domain.ExternalID
	for _, field := range slices.Sorted(maps.Keys(p.children)) {
		t := p.children[field]
		local := localID(payload[field])
		if local == "" {
			continue
		}
		child, err := domain.NewExternalID(t, p.source, local)
		if err != nil {
			continue
		}
		out = append(out, child)
	}
	return out
}

func localID(v any) string {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil && n <= 0 {
			return ""
		}
		return val.String()
	case string:
		return strings.TrimSpace(val)
	default:
		return ""
	}
}

// sameHost reports whether rawURL points at the scheme and host of base.
func sameHost(rawURL, base string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Scheme, b.Scheme) && strings.EqualFold(u.Host, b.Host)
}

// get performs a GET with an optional bearer key.
func (p *Provider) get(ctx context.Context, endpoint, key, accept string) ([]byte, string, error) {
	if !p.breaker.Allow() {
		return nil, "", providers.NewProviderError(providers.ErrorProviderOutage, p.source, "circuit open", nil)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, "", providers.NewProviderError(providers.ErrorTimeout, p.source, "rate limiter wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", providers.NewProviderError(providers.ErrorInternal, p.source, "build request", err)
	}
	req.Header.Set("Accept", accept)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.recordFailure(ctx)
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, "", providers.NewProviderError(providers.ErrorTimeout, p.source, "request timed out", err)
		}
		return nil, "", providers.NewProviderError(providers.ErrorProviderOutage, p.source, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		p.recordFailure(ctx)
		return nil, "", providers.NewProviderError(providers.ErrorProviderOutage, p.source,
			fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	}
	p.breaker.RecordSuccess()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", providers.NewProviderError(providers.ErrorNotFound, p.source, "entity not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", providers.NewProviderError(providers.ErrorRateLimited, p.source, "rate limited", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", providers.NewProviderError(providers.ErrorAuthentication, p.source,
			fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", providers.NewProviderError(providers.ErrorBadData, p.source,
			fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		return nil, "", providers.NewProviderError(providers.ErrorBadData, p.source, "read body", err)
	}
	if int64(len(data)) > p.maxBody {
		return nil, "", providers.NewProviderError(providers.ErrorBadData, p.source, "body exceeds limit", nil)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (p *Provider) apiKey(organization string) string {
	if org, ok := p.settings.Organizations[organization]; ok && org.APIKey != "" {
		return org.APIKey
	}
	return p.settings.APIKey
}

func (p *Provider) recordFailure(ctx context.Context) {
	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.logger.WarnContext(ctx, "provider circuit opened", "source", p.source)
	}
}
