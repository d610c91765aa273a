package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExternalID_Invariants validates construction at trust boundaries.
func TestExternalID_Invariants(t *testing.T) {
	t.Run("rejects unknown entity type", func(t *testing.T) {
		_, err := NewExternalID(EntityType("widget"), "mwp", "42")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects blank source", func(t *testing.T) {
		_, err := NewExternalID(EntityPage, "  ", "42")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects blank local id", func(t *testing.T) {
		_, err := NewExternalID(EntityPage, "mwp", "")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects slash in source", func(t *testing.T) {
		_, err := NewExternalID(EntityPage, "casem/v2", "42")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("trims whitespace", func(t *testing.T) {
		id, err := NewExternalID(EntityPage, " mwp ", " 42 ")
		require.NoError(t, err)
		assert.Equal(t, ExternalID{Type: EntityPage, Source: "mwp", LocalID: "42"}, id)
	})
}

// TestExternalID_TypeIsolation encodes the rule that ids differing only in
// entity type are distinct values and distinct map keys.
func TestExternalID_TypeIsolation(t *testing.T) {
	page := ExternalID{Type: EntityPage, Source: "mwp", LocalID: "42"}
	attachment := ExternalID{Type: EntityAttachment, Source: "mwp", LocalID: "42"}

	assert.NotEqual(t, page, attachment)
	assert.NotEqual(t, page.Hash(), attachment.Hash())

	m := map[ExternalID]string{page: "p", attachment: "a"}
	assert.Len(t, m, 2)
}

func TestExternalID_HashIsDeterministic(t *testing.T) {
	a := ExternalID{Type: EntityService, Source: "ptv", LocalID: "abc"}
	b := ExternalID{Type: EntityService, Source: "ptv", LocalID: "abc"}
	assert.Equal(t, a.Hash(), b.Hash())

	split := ExternalID{Type: EntityService, Source: "ptva", LocalID: "bc"}
	assert.NotEqual(t, a.Hash(), split.Hash())
}

func TestExternalID_KeyRoundTrip(t *testing.T) {
	id := ExternalID{Type: EntityAnnouncement, Source: "casem", LocalID: "node/17"}
	parsed, err := ParseExternalKey(id.Key())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseExternalKey("page-only")
	require.ErrorIs(t, err, ErrInvalidID)
}

// Every id NewExternalID accepts must survive Key and ParseExternalKey.
func TestExternalID_KeyRoundTripForConstructedIDs(t *testing.T) {
	cases := []struct{ source, local string }{
		{"mwp", "42"},
		{"casem", "node/17"},
		{"ptv", "a/b/c"},
		{"tpt", "ÄÖ-1"},
	}
	for _, c := range cases {
		id, err := NewExternalID(EntityService, c.source, c.local)
		require.NoError(t, err)
		parsed, err := ParseExternalKey(id.Key())
		require.NoError(t, err)
		assert.Equal(t, id, parsed, id.Key())
	}

	_, err := ParseExternalKey("page/case/m/42")
	require.NoError(t, err, "extra slashes fall into the local id")
}

func TestParseEntityType(t *testing.T) {
	for _, et := range EntityTypes() {
		parsed, err := ParseEntityType(strings.ToUpper(string(et)))
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}
	_, err := ParseEntityType("")
	require.ErrorIs(t, err, ErrInvalidID)
}

// TestParseCanonicalID_SecurityInvariants validates parsing rules at API entry points.
func TestParseCanonicalID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE identifiers;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCanonicalID(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewCanonicalID_IsUnique(t *testing.T) {
	seen := make(map[CanonicalID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewCanonicalID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}

		_, err := ParseCanonicalID(id.String())
		require.NoError(t, err)
	}
}
