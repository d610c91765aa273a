// Package fingerprint computes modification hashes of entities and defines the
// cache that remembers the latest hash per canonical id.
//
// A fingerprint changes whenever the serialized entity changes; it is the
// strong validator the HTTP layer hands out as an ETag.
package fingerprint

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"muniapi/pkg/domain"
)

// ErrSerialize marks entities that could not be turned into canonical bytes.
var ErrSerialize = errors.New("serialize entity")

// Cache maps canonical ids to their latest fingerprint. Put and Get are
// atomic per key; no ordering is promised across keys.
type Cache interface {
	Put(ctx context.Context, id domain.CanonicalID, hash string) error
	// Get returns ok=false on a miss.
	Get(ctx context.Context, id domain.CanonicalID) (hash string, ok bool, err error)
}

// Serialize returns the canonical JSON form of v: object keys sorted at every
// depth, numbers kept verbatim, no insignificant whitespace.
func Serialize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	// map[string]any marshals with sorted keys
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return out, nil
}

// OfEntity fingerprints the canonical serialization of v.
func OfEntity(v any) (string, error) {
	data, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return OfBytes(data), nil
}

// OfBytes fingerprints raw bytes, e.g. binary attachment content.
func OfBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
