package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: mapping, fingerprint or content does not exist in store
// - ErrConflict: a concurrent writer created the same key first
// - ErrInvalidState: component in wrong state for requested operation
// - ErrUnavailable: store, broker or upstream temporarily unavailable
// - ErrNotConfigured: per-source settings are absent
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
	ErrNotConfigured = errors.New("not configured")
)
