package domain

import (
	"fmt"
)

// APIVersion represents a valid REST API version string.
type APIVersion string

// Supported API versions.
const (
	APIVersionV1 APIVersion = "v1"
)

var knownVersions = map[APIVersion]struct{}{
	APIVersionV1: {},
}

// ParseAPIVersion validates and returns an APIVersion.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(s)
	if _, ok := knownVersions[v]; !ok {
		return "", fmt.Errorf("unknown API version %q: %w", s, ErrInvalidID)
	}
	return v, nil
}

func (v APIVersion) String() string {
	return string(v)
}

// Prefix returns the route mount point, e.g. "/v1".
func (v APIVersion) Prefix() string {
	return "/" + string(v)
}
