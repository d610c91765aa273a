package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"muniapi/internal/content"
	"muniapi/internal/content/handler"
	contentstore "muniapi/internal/content/store"
	"muniapi/internal/fingerprint"
	fpstore "muniapi/internal/fingerprint/store"
	"muniapi/internal/httpcache"
	"muniapi/internal/identifier"
	idstore "muniapi/internal/identifier/store"
	"muniapi/internal/jwttoken"
	"muniapi/internal/platform/logger"
	"muniapi/internal/updater"
	"muniapi/pkg/domain"
	authmw "muniapi/pkg/platform/middleware/auth"
	"muniapi/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctx     context.Context
	ids     *identifier.Registry
	cache   *fpstore.InMemoryCache
	content *contentstore.InMemoryStore
	jwt     *jwttoken.JWTService
	inbox   chan updater.Request
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	log := logger.Discard()
	s.ids = identifier.New(idstore.NewInMemoryStore(), identifier.WithLogger(log))
	s.cache = fpstore.NewInMemoryCache()
	s.content = contentstore.NewInMemoryStore()
	s.jwt = jwttoken.NewJWTService("test-key", "muniapi", "muniapi-admin")

	s.inbox = make(chan updater.Request, 4)
	bus := updater.NewChannelBus()
	bus.Register(domain.EntityPage, s.inbox)

	h := handler.New(s.ids, s.content, httpcache.New(s.cache, httpcache.WithLogger(log)), bus, s.jwt, log)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

// seed stores an entity as a completed refresh would.
func (s *HandlerSuite) seed(t domain.EntityType, local string, data map[string]any) domain.CanonicalID {
	ext, err := domain.NewExternalID(t, "mwp", local)
	s.Require().NoError(err)
	id, err := s.ids.Resolve(s.ctx, ext)
	s.Require().NoError(err)
	s.Require().NoError(s.content.Put(s.ctx, &content.Entity{
		ID: id, Type: t, Source: "mwp", SourceID: local, Data: data,
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	hash, err := fingerprint.OfEntity(data)
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Put(s.ctx, id, hash))
	return id
}

func (s *HandlerSuite) get(path, ifNoneMatch string) *http.Request {
	req := testutil.NewRequest(s.T(), http.MethodGet, path)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	return req
}

func (s *HandlerSuite) TestGetEntityAndRevalidate() {
	data := map[string]any{"title": "Welcome"}
	id := s.seed(domain.EntityPage, "42", data)

	rr := testutil.DoRequest(s.router, s.get("/v1/page/"+id.String(), ""))
	testutil.AssertStatusOK(s.T(), rr)
	hash, _ := fingerprint.OfEntity(data)
	s.Equal(`"`+hash+`"`, rr.Header().Get("ETag"))
	s.Equal("must-revalidate", rr.Header().Get("Cache-Control"))
	got := testutil.UnmarshalResponse[content.Entity](s.T(), rr)
	s.Equal(id, got.ID)
	s.Equal("42", got.SourceID)

	rr = testutil.DoRequest(s.router, s.get("/v1/page/"+id.String(), `"`+hash+`"`))
	testutil.AssertStatus(s.T(), rr, http.StatusNotModified)
	s.Empty(rr.Body.Bytes())
}

func (s *HandlerSuite) TestSameTagMeansSameBody() {
	data := map[string]any{"title": "Welcome"}
	id := s.seed(domain.EntityPage, "42", data)
	first := testutil.DoRequest(s.router, s.get("/v1/page/"+id.String(), ""))
	testutil.AssertStatusOK(s.T(), first)

	// A later refresh with unchanged content only moves the timestamp.
	stored, err := s.content.Get(s.ctx, id)
	s.Require().NoError(err)
	refreshed := *stored
	refreshed.UpdatedAt = refreshed.UpdatedAt.Add(time.Hour)
	s.Require().NoError(s.content.Put(s.ctx, &refreshed))

	second := testutil.DoRequest(s.router, s.get("/v1/page/"+id.String(), ""))
	testutil.AssertStatusOK(s.T(), second)
	s.Equal(first.Header().Get("ETag"), second.Header().Get("ETag"))
	s.Equal(first.Body.String(), second.Body.String())
	s.NotContains(second.Body.String(), "updatedAt")
}

func (s *HandlerSuite) TestGetEntityWithoutFingerprintIsUntagged() {
	ext, err := domain.NewExternalID(domain.EntityPage, "mwp", "9")
	s.Require().NoError(err)
	id, err := s.ids.Resolve(s.ctx, ext)
	s.Require().NoError(err)
	s.Require().NoError(s.content.Put(s.ctx, &content.Entity{ID: id, Type: domain.EntityPage, Source: "mwp", SourceID: "9"}))

	rr := testutil.DoRequest(s.router, s.get("/v1/page/"+id.String(), "*"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Empty(rr.Header().Get("ETag"))
	s.Empty(rr.Header().Get("Cache-Control"))
}

func (s *HandlerSuite) TestGetEntityErrors() {
	page := s.seed(domain.EntityPage, "42", map[string]any{"title": "x"})

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown type", "/v1/widget/" + page.String(), http.StatusBadRequest, "bad_request"},
		{"malformed id", "/v1/page/not-a-uuid", http.StatusBadRequest, "bad_request"},
		{"unknown id", "/v1/page/" + domain.NewCanonicalID().String(), http.StatusNotFound, "not_found"},
		{"type mismatch", "/v1/news/" + page.String(), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := testutil.DoRequest(s.router, s.get(tt.path, ""))
			testutil.AssertStatus(s.T(), rr, tt.status)
			testutil.AssertErrorCode(s.T(), rr, tt.code)
		})
	}
}

func (s *HandlerSuite) TestListKeepsRequestOrderAndTags() {
	a := s.seed(domain.EntityPage, "1", map[string]any{"title": "a"})
	b := s.seed(domain.EntityPage, "2", map[string]any{"title": "b"})
	news := s.seed(domain.EntityNews, "3", map[string]any{"title": "n"})

	path := "/v1/page?ids=" + b.String() + "," + news.String() + "," + a.String()
	rr := testutil.DoRequest(s.router, s.get(path, ""))
	testutil.AssertStatusOK(s.T(), rr)

	var got []content.Entity
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &got))
	s.Require().Len(got, 2)
	s.Equal(b, got[0].ID)
	s.Equal(a, got[1].ID)

	hashA, _ := fingerprint.OfEntity(map[string]any{"title": "a"})
	hashB, _ := fingerprint.OfEntity(map[string]any{"title": "b"})
	tag := `"` + httpcache.CompositeTag([]string{hashB, hashA}) + `"`
	s.Equal(tag, rr.Header().Get("ETag"))

	rr = testutil.DoRequest(s.router, s.get(path, tag))
	testutil.AssertStatus(s.T(), rr, http.StatusNotModified)
}

func (s *HandlerSuite) TestListRequiresIDs() {
	rr := testutil.DoRequest(s.router, s.get("/v1/page", ""))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "bad_request")
}

func (s *HandlerSuite) TestLookup() {
	id := s.seed(domain.EntityPage, "42", map[string]any{"title": "x"})

	rr := testutil.DoRequest(s.router, s.get("/v1/identifiers/page/mwp/42", ""))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "id", id.String())

	rr = testutil.DoRequest(s.router, s.get("/v1/identifiers/page/mwp/43", ""))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}

func (s *HandlerSuite) token(scopes ...string) string {
	tok, err := s.jwt.Issue("ops@example.fi", scopes, time.Minute)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) TestUpdateRequestPublishes() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/update-requests", handler.UpdateRequestBody{
		Type: "page", Source: "mwp", ID: "42", Priority: true, Organization: "mikkeli",
	})
	req.Header.Set("Authorization", "Bearer "+s.token(authmw.ScopeUpdatesWrite))
	req = testutil.WithRequestTime(req, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	testutil.AssertJSONContains(s.T(), rr, "requestedAt", "2026-02-03T04:05:06Z")

	s.Require().Len(s.inbox, 1)
	got := <-s.inbox
	s.Equal("page/mwp/42", got.Target.Key())
	s.True(got.Priority)
	s.Require().NotNil(got.Parent)
	s.Equal("organization/mwp/mikkeli", got.Parent.Key())
}

func (s *HandlerSuite) TestUpdateRequestAuth() {
	body := handler.UpdateRequestBody{Type: "page", Source: "mwp", ID: "42"}

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/update-requests", body))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/update-requests", body)
	req.Header.Set("Authorization", "Bearer "+s.token("content:read"))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	s.Empty(s.inbox)
}

func (s *HandlerSuite) TestUpdateRequestForTypeWithoutScheduler() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/update-requests", handler.UpdateRequestBody{
		Type: "event", Source: "mwp", ID: "1",
	})
	req.Header.Set("Authorization", "Bearer "+s.token(authmw.ScopeUpdatesWrite))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(s.T(), rr, "not_configured")
}

func (s *HandlerSuite) TestUpdateRequestValidation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/update-requests", handler.UpdateRequestBody{
		Type: "page", Source: "mwp",
	})
	req.Header.Set("Authorization", "Bearer "+s.token(authmw.ScopeUpdatesWrite))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}
