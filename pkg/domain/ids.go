package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when an identifier fails validation at a trust boundary.
var ErrInvalidID = errors.New("invalid identifier")

// EntityType is the closed set of entity kinds the gateway aggregates.
type EntityType string

const (
	EntityPage         EntityType = "page"
	EntityService      EntityType = "service"
	EntityAttachment   EntityType = "attachment"
	EntityAnnouncement EntityType = "announcement"
	EntityEvent        EntityType = "event"
	EntityNews         EntityType = "news"
	EntityOrganization EntityType = "organization"
	EntityBanner       EntityType = "banner"
	EntityTile         EntityType = "tile"
	EntityFragment     EntityType = "fragment"
	EntityMenu         EntityType = "menu"
	EntityFile         EntityType = "file"
	EntityJob          EntityType = "job"
)

// hashSalt gives every entity type its own (initial, multiplier) pair so that
// ids of different types with identical source/local-id never hash alike.
var hashSalt = map[EntityType][2]uint64{
	EntityPage:         {151, 163},
	EntityService:      {133, 145},
	EntityAttachment:   {175, 187},
	EntityAnnouncement: {235, 247},
	EntityEvent:        {115, 127},
	EntityNews:         {193, 205},
	EntityOrganization: {101, 113},
	EntityBanner:       {211, 223},
	EntityTile:         {259, 271},
	EntityFragment:     {283, 295},
	EntityMenu:         {307, 319},
	EntityFile:         {331, 343},
	EntityJob:          {355, 367},
}

// EntityTypes returns every supported entity type in declaration order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityPage, EntityService, EntityAttachment, EntityAnnouncement, EntityEvent,
		EntityNews, EntityOrganization, EntityBanner, EntityTile, EntityFragment,
		EntityMenu, EntityFile, EntityJob,
	}
}

// ParseEntityType validates s against the closed enumeration.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := hashSalt[t]; !ok {
		return "", fmt.Errorf("unknown entity type %q: %w", s, ErrInvalidID)
	}
	return t, nil
}

// IsValid reports whether t is a member of the enumeration.
func (t EntityType) IsValid() bool {
	_, ok := hashSalt[t]
	return ok
}

func (t EntityType) String() string {
	return string(t)
}

// ExternalID identifies an entity as known to one upstream source system.
// The zero value is not a valid id. ExternalID is comparable and can be used
// directly as a map key; equality covers all three fields.
type ExternalID struct {
	Type    EntityType
	Source  string
	LocalID string
}

// NewExternalID validates and builds an ExternalID.
func NewExternalID(t EntityType, source, localID string) (ExternalID, error) {
	if !t.IsValid() {
		return ExternalID{}, fmt.Errorf("entity type %q: %w", t, ErrInvalidID)
	}
	source = strings.TrimSpace(source)
	localID = strings.TrimSpace(localID)
	if source == "" {
		return ExternalID{}, fmt.Errorf("source is required: %w", ErrInvalidID)
	}
	// "/" separates key segments; only the local id may carry it.
	if strings.Contains(source, "/") {
		return ExternalID{}, fmt.Errorf("source %q contains '/': %w", source, ErrInvalidID)
	}
	if localID == "" {
		return ExternalID{}, fmt.Errorf("local id is required: %w", ErrInvalidID)
	}
	return ExternalID{Type: t, Source: source, LocalID: localID}, nil
}

// IsZero reports whether the id is the zero value.
func (id ExternalID) IsZero() bool {
	return id == ExternalID{}
}

// Key returns a stable string form "type/source/localID" used for message
// keys and log fields.
func (id ExternalID) Key() string {
	return string(id.Type) + "/" + id.Source + "/" + id.LocalID
}

func (id ExternalID) String() string {
	return id.Key()
}

// Hash returns a type-salted hash over source and local id.
func (id ExternalID) Hash() uint64 {
	salt, ok := hashSalt[id.Type]
	if !ok {
		salt = [2]uint64{1, 31}
	}
	h := salt[0]
	for _, part := range []string{id.Source, id.LocalID} {
		for i := 0; i < len(part); i++ {
			h = h*salt[1] + uint64(part[i])
		}
		// separator keeps ("ab","c") and ("a","bc") apart
		h = h*salt[1] + 0xff
	}
	return h
}

// ParseExternalKey is the inverse of Key.
func ParseExternalKey(key string) (ExternalID, error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return ExternalID{}, fmt.Errorf("malformed external key %q: %w", key, ErrInvalidID)
	}
	t, err := ParseEntityType(parts[0])
	if err != nil {
		return ExternalID{}, err
	}
	return NewExternalID(t, parts[1], parts[2])
}

// CanonicalID is the gateway-minted identifier for one entity, independent of
// its source. It is never recycled or mutated.
type CanonicalID string

// NewCanonicalID mints a fresh random canonical id.
func NewCanonicalID() CanonicalID {
	return CanonicalID(uuid.NewString())
}

// ParseCanonicalID validates that s is a non-nil UUID.
func ParseCanonicalID(s string) (CanonicalID, error) {
	if s == "" {
		return "", fmt.Errorf("canonical id is required: %w", ErrInvalidID)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("canonical id %q: %w", s, ErrInvalidID)
	}
	if parsed == uuid.Nil {
		return "", fmt.Errorf("canonical id must not be nil: %w", ErrInvalidID)
	}
	return CanonicalID(parsed.String()), nil
}

func (id CanonicalID) String() string {
	return string(id)
}

// IsNil reports whether the id is empty.
func (id CanonicalID) IsNil() bool {
	return id == ""
}
