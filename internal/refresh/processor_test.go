package refresh_test

//go:generate mockgen -source=processor.go -destination=mocks/mocks.go -package=mocks IndexSink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"muniapi/internal/content"
	contentstore "muniapi/internal/content/store"
	"muniapi/internal/fingerprint"
	fpstore "muniapi/internal/fingerprint/store"
	"muniapi/internal/identifier"
	idstore "muniapi/internal/identifier/store"
	"muniapi/internal/platform/config"
	"muniapi/internal/platform/logger"
	"muniapi/internal/providers"
	providermocks "muniapi/internal/providers/mocks"
	"muniapi/internal/refresh"
	"muniapi/internal/refresh/mocks"
	"muniapi/internal/updater"
	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

type ProcessorSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	provider *providermocks.MockProvider
	index    *mocks.MockIndexSink
	ids      *identifier.Registry
	cache    *fpstore.InMemoryCache
	content  *contentstore.InMemoryStore
	proc     *refresh.Processor
	now      time.Time
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.provider = providermocks.NewMockProvider(s.ctrl)
	s.provider.EXPECT().ID().Return("mwp").AnyTimes()
	s.provider.EXPECT().Capabilities().Return(providers.Capabilities{
		Types: []domain.EntityType{domain.EntityPage, domain.EntityAttachment},
	}).AnyTimes()
	s.index = mocks.NewMockIndexSink(s.ctrl)

	registry := providers.NewProviderRegistry()
	s.Require().NoError(registry.Register(s.provider))

	log := logger.Discard()
	s.ids = identifier.New(idstore.NewInMemoryStore(), identifier.WithLogger(log))
	s.cache = fpstore.NewInMemoryCache()
	s.content = contentstore.NewInMemoryStore()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.proc = refresh.New(registry, s.ids, s.cache, s.content,
		refresh.WithLogger(log),
		refresh.WithIndexSink(s.index),
		refresh.WithClock(func() time.Time { return s.now }),
	)
}

func (s *ProcessorSuite) ext(t domain.EntityType, local string) domain.ExternalID {
	id, err := domain.NewExternalID(t, "mwp", local)
	s.Require().NoError(err)
	return id
}

func (s *ProcessorSuite) fingerprintOf(ext domain.ExternalID) string {
	id, err := s.ids.Lookup(s.ctx, ext)
	s.Require().NoError(err)
	hash, ok, err := s.cache.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(ok)
	return hash
}

func (s *ProcessorSuite) TestPageWithFeaturedMedia() {
	pageID := s.ext(domain.EntityPage, "42")
	mediaID := s.ext(domain.EntityAttachment, "7")
	payload := map[string]any{"title": "Welcome", "featured_media": 7}
	image := []byte{0x89, 'P', 'N', 'G'}

	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "").Return(&providers.RawEntity{
		ID: pageID, Payload: payload, Children: []domain.ExternalID{mediaID},
	}, nil)
	s.provider.EXPECT().Fetch(gomock.Any(), mediaID, "").Return(&providers.RawEntity{
		ID: mediaID, Payload: map[string]any{"id": 7}, Data: image, ContentType: "image/png",
	}, nil)

	var indexed []byte
	s.index.EXPECT().Index(gomock.Any(), gomock.Any(), domain.EntityPage, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.CanonicalID, _ domain.EntityType, body []byte) error {
			indexed = body
			return nil
		})

	s.Require().NoError(s.proc.Process(s.ctx, updater.NewRequest(pageID)))

	want, err := fingerprint.OfEntity(payload)
	s.Require().NoError(err)
	s.Equal(want, s.fingerprintOf(pageID))
	s.Equal(fingerprint.OfBytes(image), s.fingerprintOf(mediaID), "binary children hash raw bytes")
	s.JSONEq(`{"featured_media":7,"title":"Welcome"}`, string(indexed))

	pageCanonical, err := s.ids.Lookup(s.ctx, pageID)
	s.Require().NoError(err)
	stored, err := s.content.Get(s.ctx, pageCanonical)
	s.Require().NoError(err)
	s.Equal(&content.Entity{
		ID: pageCanonical, Type: domain.EntityPage, Source: "mwp", SourceID: "42",
		Data: payload, UpdatedAt: s.now,
	}, stored)
}

func (s *ProcessorSuite) TestOrganizationParentSelectsSettings() {
	pageID := s.ext(domain.EntityPage, "1")
	org := s.ext(domain.EntityOrganization, "mikkeli")
	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "mikkeli").Return(&providers.RawEntity{
		ID: pageID, Payload: map[string]any{"title": "x"},
	}, nil)
	s.index.EXPECT().Index(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s.NoError(s.proc.Process(s.ctx, updater.Request{Target: pageID, Parent: &org}))
}

func (s *ProcessorSuite) TestFetchFailureLeavesNoTrace() {
	pageID := s.ext(domain.EntityPage, "1")
	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "").
		Return(nil, providers.NewProviderError(providers.ErrorProviderOutage, "mwp", "503", nil))

	err := s.proc.Process(s.ctx, updater.NewRequest(pageID))
	s.Equal(updater.KindProvider, updater.ErrorKind(err))

	_, err = s.ids.Lookup(s.ctx, pageID)
	s.ErrorIs(err, sentinel.ErrNotFound, "no id is minted for entities that could not be fetched")
}

func (s *ProcessorSuite) TestChildFailureDoesNotFailParent() {
	pageID := s.ext(domain.EntityPage, "42")
	mediaID := s.ext(domain.EntityAttachment, "7")
	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "").Return(&providers.RawEntity{
		ID: pageID, Payload: map[string]any{"title": "x"}, Children: []domain.ExternalID{mediaID},
	}, nil)
	s.provider.EXPECT().Fetch(gomock.Any(), mediaID, "").
		Return(nil, providers.NewProviderError(providers.ErrorNotFound, "mwp", "gone", nil))
	s.index.EXPECT().Index(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s.NoError(s.proc.Process(s.ctx, updater.NewRequest(pageID)))
	s.NotEmpty(s.fingerprintOf(pageID))
}

func (s *ProcessorSuite) TestIndexFailureIsAbsorbed() {
	pageID := s.ext(domain.EntityPage, "1")
	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "").Return(&providers.RawEntity{
		ID: pageID, Payload: map[string]any{"title": "x"},
	}, nil)
	s.index.EXPECT().Index(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("indexer down"))

	s.NoError(s.proc.Process(s.ctx, updater.NewRequest(pageID)))
}

func (s *ProcessorSuite) TestUnknownSource() {
	ext, err := domain.NewExternalID(domain.EntityPage, "ptv", "1")
	s.Require().NoError(err)

	err = s.proc.Process(s.ctx, updater.NewRequest(ext))
	s.ErrorIs(err, providers.ErrProviderNotFound)
}

func (s *ProcessorSuite) TestUnsupportedType() {
	err := s.proc.Process(s.ctx, updater.NewRequest(s.ext(domain.EntityJob, "1")))
	s.Equal(providers.ErrorNotFound, providers.GetCategory(err))
}

func (s *ProcessorSuite) TestUnserializablePayload() {
	pageID := s.ext(domain.EntityPage, "1")
	s.provider.EXPECT().Fetch(gomock.Any(), pageID, "").Return(&providers.RawEntity{
		ID: pageID, Payload: map[string]any{"bad": make(chan int)},
	}, nil)

	err := s.proc.Process(s.ctx, updater.NewRequest(pageID))
	s.Equal(updater.KindSerialization, updater.ErrorKind(err))
}

func TestConfiguredFilter(t *testing.T) {
	sources, err := config.ParseSources([]byte(`
[sources.mwp]
base_url = ""

[sources.mwp.organizations.mikkeli]
base_url = "https://mikkeli.example.fi/wp-json/wp/v2"

[sources.ptv]
base_url = "https://ptv.example.fi/api"
`))
	if err != nil {
		t.Fatal(err)
	}
	accept := refresh.ConfiguredFilter(sources)

	mustExt := func(tp domain.EntityType, source, local string) domain.ExternalID {
		id, err := domain.NewExternalID(tp, source, local)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	mikkeli := mustExt(domain.EntityOrganization, "mwp", "mikkeli")

	tests := []struct {
		name string
		req  updater.Request
		want bool
	}{
		{"configured source", updater.NewRequest(mustExt(domain.EntityService, "ptv", "1")), true},
		{"blank base url", updater.NewRequest(mustExt(domain.EntityPage, "mwp", "1")), false},
		{"organization override", updater.Request{Target: mustExt(domain.EntityPage, "mwp", "1"), Parent: &mikkeli}, true},
		{"unknown source", updater.NewRequest(mustExt(domain.EntityPage, "tpt", "1")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accept(tt.req); got != tt.want {
				t.Errorf("accept() = %v, want %v", got, tt.want)
			}
		})
	}
}
