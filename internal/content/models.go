// Package content keeps the last successfully fetched representation of each
// entity so the REST facade can serve it without calling upstream.
package content

import (
	"context"
	"time"

	"muniapi/pkg/domain"
)

// Entity is one stored representation, addressed by canonical id. Only fields
// that follow from the fingerprinted content are serialized, so equal ETags
// always mean equal bodies.
type Entity struct {
	ID          domain.CanonicalID `json:"id"`
	Type        domain.EntityType  `json:"type"`
	Source      string             `json:"source"`
	SourceID    string             `json:"sourceId"`
	ContentType string             `json:"contentType,omitempty"`
	Size        int                `json:"size,omitempty"`
	Data        map[string]any     `json:"data,omitempty"`
	UpdatedAt   time.Time          `json:"-"`
}

func (e *Entity) EntityID() domain.CanonicalID {
	return e.ID
}

// Store persists entities. Put replaces any previous representation.
type Store interface {
	Put(ctx context.Context, e *Entity) error
	// Get returns sentinel.ErrNotFound when nothing has been stored yet.
	Get(ctx context.Context, id domain.CanonicalID) (*Entity, error)
}
