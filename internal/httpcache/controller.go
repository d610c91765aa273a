// Package httpcache answers conditional GETs from stored fingerprints.
//
// A single entity's strong ETag is its quoted fingerprint. A list's ETag is
// the md5 of the member fingerprints joined by "-", in request order, and
// exists only when the list is non-empty and every member has a fingerprint.
package httpcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"muniapi/internal/fingerprint"
	"muniapi/internal/httpcache/metrics"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/httputil"
)

const (
	shapeSingle = "single"
	shapeList   = "list"
)

// Identified is implemented by response models that carry their canonical id.
type Identified interface {
	EntityID() domain.CanonicalID
}

// EntityIDs collects canonical ids in item order.
func EntityIDs[T Identified](items []T) []domain.CanonicalID {
	ids := make([]domain.CanonicalID, len(items))
	for i, item := range items {
		ids[i] = item.EntityID()
	}
	return ids
}

// Controller evaluates If-None-Match against the fingerprint cache.
type Controller struct {
	cache   fingerprint.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func New(cache fingerprint.Cache, opts ...Option) *Controller {
	c := &Controller{cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NotModified writes 304 (or 412 for unsafe methods) and returns true when the
// request's If-None-Match matches the entity's current tag. When false,
// nothing has been written.
func (c *Controller) NotModified(w http.ResponseWriter, r *http.Request, id domain.CanonicalID) bool {
	return c.evaluate(w, r, shapeSingle, c.entityTag(r, id))
}

// NotModifiedList is NotModified for an ordered list of entities.
func (c *Controller) NotModifiedList(w http.ResponseWriter, r *http.Request, ids []domain.CanonicalID) bool {
	return c.evaluate(w, r, shapeList, c.listTag(r, ids))
}

// SendModified writes body as 200 JSON, with ETag and must-revalidate when
// the entity has a fingerprint.
func (c *Controller) SendModified(w http.ResponseWriter, r *http.Request, body any, id domain.CanonicalID) {
	c.send(w, r, body, c.entityTag(r, id))
}

// SendModifiedList is SendModified for an ordered list of entities.
func (c *Controller) SendModifiedList(w http.ResponseWriter, r *http.Request, body any, ids []domain.CanonicalID) {
	c.send(w, r, body, c.listTag(r, ids))
}

func (c *Controller) evaluate(w http.ResponseWriter, r *http.Request, shape, tag string) bool {
	if tag == "" {
		c.observe(shape, metrics.OutcomeUntagged)
		return false
	}
	if !matchesAny(r.Header.Get("If-None-Match"), tag) {
		c.observe(shape, metrics.OutcomeModified)
		return false
	}
	w.Header().Set("ETag", tag)
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		c.observe(shape, metrics.OutcomePreconditionFailed)
		w.WriteHeader(http.StatusPreconditionFailed)
		return true
	}
	c.observe(shape, metrics.OutcomeNotModified)
	w.WriteHeader(http.StatusNotModified)
	return true
}

func (c *Controller) send(w http.ResponseWriter, r *http.Request, body any, tag string) {
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to encode response body", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if tag != "" {
		w.Header().Set("ETag", tag)
		w.Header().Set("Cache-Control", "must-revalidate")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// entityTag returns the quoted fingerprint, or "" when none is stored. Cache
// errors degrade to "no tag" so the response is served in full.
func (c *Controller) entityTag(r *http.Request, id domain.CanonicalID) string {
	hash, ok := c.lookup(r, id)
	if !ok {
		return ""
	}
	return quote(hash)
}

func (c *Controller) listTag(r *http.Request, ids []domain.CanonicalID) string {
	if len(ids) == 0 {
		return ""
	}
	hashes := make([]string, len(ids))
	for i, id := range ids {
		hash, ok := c.lookup(r, id)
		if !ok {
			return ""
		}
		hashes[i] = hash
	}
	return quote(CompositeTag(hashes))
}

func (c *Controller) lookup(r *http.Request, id domain.CanonicalID) (string, bool) {
	hash, ok, err := c.cache.Get(r.Context(), id)
	if err != nil {
		c.logger.WarnContext(r.Context(), "fingerprint lookup failed, serving untagged",
			"canonical_id", id.String(),
			"error", err,
		)
		return "", false
	}
	return hash, ok
}

func (c *Controller) observe(shape, outcome string) {
	if c.metrics != nil {
		c.metrics.Observe(shape, outcome)
	}
}

// CompositeTag digests member fingerprints in the given order.
func CompositeTag(hashes []string) string {
	sum := md5.Sum([]byte(strings.Join(hashes, "-")))
	return hex.EncodeToString(sum[:])
}

func quote(v string) string {
	return `"` + v + `"`
}

// matchesAny applies the weak comparison If-None-Match requires
// (RFC 9110 §13.1.2): "W/" prefixes are ignored and "*" matches any
// existing representation.
func matchesAny(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == want {
			return true
		}
	}
	return false
}
