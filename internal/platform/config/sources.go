package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"muniapi/pkg/domain"
)

// Sources holds per-upstream settings loaded from the sources TOML file.
//
//	[sources.mwp]
//	base_url = "https://cms.example.fi/wp-json/wp/v2"
//	requests_per_second = 2.0
//	timeout_seconds = 10
//
//	[sources.mwp.paths]
//	page = "pages"
//	attachment = "media"
//
//	[sources.mwp.children]
//	featured_media = "attachment"
//
//	[sources.mwp.organizations.mikkeli]
//	base_url = "https://mikkeli.example.fi/wp-json/wp/v2"
type Sources struct {
	Sources map[string]Source `toml:"sources"`
}

// Source is the configuration of one upstream system.
type Source struct {
	BaseURL           string            `toml:"base_url"`
	APIKey            string            `toml:"api_key"`
	RequestsPerSecond float64           `toml:"requests_per_second"`
	Burst             int               `toml:"burst"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	Paths             map[string]string `toml:"paths"`
	// Children maps payload fields holding child ids to the child entity type.
	Children map[string]string `toml:"children"`
	// BinaryField names the payload field holding the URL of an entity's raw
	// content (attachments). Empty disables binary fetches.
	BinaryField   string                  `toml:"binary_field"`
	Organizations map[string]Organization `toml:"organizations"`
}

// Organization overrides source settings for one municipality.
type Organization struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Timeout returns the request timeout, defaulting to ten seconds.
func (s Source) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// PathFor returns the upstream path segment for an entity type, defaulting to
// the plural of the type name.
func (s Source) PathFor(t domain.EntityType) string {
	if p, ok := s.Paths[string(t)]; ok && p != "" {
		return strings.Trim(p, "/")
	}
	return string(t) + "s"
}

// ChildTypes returns the child links with their types validated.
func (s Source) ChildTypes() (map[string]domain.EntityType, error) {
	out := make(map[string]domain.EntityType, len(s.Children))
	for field, raw := range s.Children {
		t, err := domain.ParseEntityType(raw)
		if err != nil {
			return nil, fmt.Errorf("child field %s: %w", field, err)
		}
		out[field] = t
	}
	return out, nil
}

// LoadSources reads the TOML file at path. An empty path yields an empty set,
// meaning every source is unconfigured.
func LoadSources(path string) (*Sources, error) {
	if path == "" {
		return &Sources{Sources: map[string]Source{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes TOML source settings.
func ParseSources(data []byte) (*Sources, error) {
	var s Sources
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if s.Sources == nil {
		s.Sources = map[string]Source{}
	}
	return &s, nil
}

// Lookup returns the settings for a source.
func (s *Sources) Lookup(source string) (Source, bool) {
	if s == nil {
		return Source{}, false
	}
	src, ok := s.Sources[source]
	return src, ok
}

// BaseURL resolves the base URL for a source, preferring the organization
// override. An empty result means the source is not configured.
func (s *Sources) BaseURL(source, organization string) string {
	src, ok := s.Lookup(source)
	if !ok {
		return ""
	}
	if organization != "" {
		if org, ok := src.Organizations[organization]; ok && strings.TrimSpace(org.BaseURL) != "" {
			return strings.TrimRight(strings.TrimSpace(org.BaseURL), "/")
		}
	}
	return strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
}

// Configured reports whether a base URL can be resolved.
func (s *Sources) Configured(source, organization string) bool {
	return s.BaseURL(source, organization) != ""
}
