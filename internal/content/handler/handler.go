package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"muniapi/internal/content"
	"muniapi/internal/httpcache"
	"muniapi/internal/updater"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/httputil"
	authmw "muniapi/pkg/platform/middleware/auth"
	"muniapi/pkg/platform/middleware/request"
	"muniapi/pkg/platform/middleware/version"
	"muniapi/pkg/platform/sentinel"
	platformstrings "muniapi/pkg/platform/strings"
	"muniapi/pkg/requestcontext"
)

// maxListIDs bounds the ids query parameter of list requests.
const maxListIDs = 100

// Identifiers is the read side of the identifier registry.
type Identifiers interface {
	Lookup(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error)
	Reverse(ctx context.Context, id domain.CanonicalID) (domain.ExternalID, error)
	ReverseMany(ctx context.Context, ids []domain.CanonicalID) (map[domain.CanonicalID]domain.ExternalID, error)
}

// Handler serves stored entities with conditional GET support and accepts
// update requests from administrators.
type Handler struct {
	ids          Identifiers
	content      content.Store
	cache        *httpcache.Controller
	bus          updater.Bus
	jwtValidator authmw.JWTValidator
	logger       *slog.Logger
}

func New(
	ids Identifiers,
	store content.Store,
	cache *httpcache.Controller,
	bus updater.Bus,
	jwtValidator authmw.JWTValidator,
	logger *slog.Logger) *Handler {
	return &Handler{
		ids:          ids,
		content:      store,
		cache:        cache,
		bus:          bus,
		jwtValidator: jwtValidator,
		logger:       logger,
	}
}

// Register mounts the entity and update-request routes under /v1.
func (h *Handler) Register(r chi.Router) {
	r.Route(domain.APIVersionV1.Prefix(), func(r chi.Router) {
		r.Use(version.ExtractVersion(domain.APIVersionV1))
		r.With(authmw.RequireScope(h.jwtValidator, authmw.ScopeUpdatesWrite, h.logger)).
			Post("/update-requests", h.handleUpdateRequest)
		r.Get("/identifiers/{type}/{source}/{localID}", h.handleLookup)
		r.Get("/{type}", h.handleList)
		r.Get("/{type}/{id}", h.handleGet)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := domain.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseCanonicalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ext, err := h.ids.Reverse(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if ext.Type != t {
		httputil.WriteError(w, fmt.Errorf("%s %s: %w", t, id, sentinel.ErrNotFound))
		return
	}

	if h.cache.NotModified(w, r, id) {
		return
	}
	entity, err := h.content.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.cache.SendModified(w, r, entity, id)
}

// handleList returns the requested entities of one type in request order.
// Unknown ids and ids of other types are left out.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := domain.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	raw := platformstrings.SplitCSV(r.URL.Query().Get("ids"))
	if len(raw) == 0 {
		httputil.WriteError(w, fmt.Errorf("ids is required: %w", domain.ErrInvalidID))
		return
	}
	if len(raw) > maxListIDs {
		httputil.WriteError(w, fmt.Errorf("at most %d ids per request: %w", maxListIDs, domain.ErrInvalidID))
		return
	}
	ids := make([]domain.CanonicalID, 0, len(raw))
	for _, v := range raw {
		id, err := domain.ParseCanonicalID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ids = append(ids, id)
	}

	known, err := h.ids.ReverseMany(ctx, ids)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	entities := make([]*content.Entity, 0, len(ids))
	for _, id := range ids {
		if ext, ok := known[id]; !ok || ext.Type != t {
			continue
		}
		entity, err := h.content.Get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		entities = append(entities, entity)
	}

	listIDs := httpcache.EntityIDs(entities)
	if h.cache.NotModifiedList(w, r, listIDs) {
		return
	}
	h.cache.SendModifiedList(w, r, entities, listIDs)
}

type lookupResponse struct {
	ID       domain.CanonicalID `json:"id"`
	Type     domain.EntityType  `json:"type"`
	Source   string             `json:"source"`
	SourceID string             `json:"sourceId"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := domain.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ext, err := domain.NewExternalID(t, chi.URLParam(r, "source"), chi.URLParam(r, "localID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.ids.Lookup(ctx, ext)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lookupResponse{
		ID: id, Type: ext.Type, Source: ext.Source, SourceID: ext.LocalID,
	})
}

// UpdateRequestBody asks for one entity to be re-fetched.
type UpdateRequestBody struct {
	Type     string `json:"type"`
	Source   string `json:"source"`
	ID       string `json:"id"`
	Priority bool   `json:"priority"`
	// Organization selects per-municipality source settings.
	Organization string `json:"organization,omitempty"`
}

type updateRequestResponse struct {
	Target      string    `json:"target"`
	Priority    bool      `json:"priority"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (h *Handler) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body UpdateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, fmt.Errorf("invalid request body: %w", domain.ErrInvalidID))
		return
	}
	t, err := domain.ParseEntityType(body.Type)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := domain.NewExternalID(t, body.Source, body.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := updater.Request{Target: target, Priority: body.Priority}
	if org := strings.TrimSpace(body.Organization); org != "" {
		parent, err := domain.NewExternalID(domain.EntityOrganization, target.Source, org)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.Parent = &parent
	}

	if err := h.bus.Publish(ctx, req); err != nil {
		if errors.Is(err, updater.ErrNoScheduler) {
			err = fmt.Errorf("%w: %w", sentinel.ErrNotConfigured, err)
		}
		h.writeError(ctx, w, err)
		return
	}

	h.logger.InfoContext(ctx, "update request accepted",
		"request_id", request.GetRequestID(ctx),
		"subject", requestcontext.Subject(ctx),
		"target", target.Key(),
		"priority", req.Priority,
	)
	httputil.WriteJSON(w, http.StatusAccepted, updateRequestResponse{
		Target:      target.Key(),
		Priority:    req.Priority,
		RequestedAt: requestcontext.Now(ctx),
	})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if !errors.Is(err, sentinel.ErrNotFound) {
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
