package updater

import (
	"errors"

	"muniapi/internal/fingerprint"
	"muniapi/internal/identifier"
	"muniapi/internal/providers"
	"muniapi/pkg/platform/sentinel"
)

var (
	ErrStopped         = errors.New("scheduler stopped")
	ErrWrongEntityType = errors.New("request entity type does not match scheduler")
	ErrNoScheduler     = errors.New("no scheduler for entity type")
	ErrProcessorPanic  = errors.New("processor panicked")
)

// FailureKind classifies why a drained request was dropped.
type FailureKind string

const (
	KindProvider        FailureKind = "provider"
	KindIdentifierStore FailureKind = "identifier_store"
	KindSerialization   FailureKind = "serialization"
	KindConfiguration   FailureKind = "configuration_missing"
	KindCache           FailureKind = "cache"
	KindPanic           FailureKind = "panic"
	KindUnknown         FailureKind = "unknown"
)

// ErrorKind maps a processing error onto its failure kind for logs and metrics.
func ErrorKind(err error) FailureKind {
	switch {
	case errors.Is(err, ErrProcessorPanic):
		return KindPanic
	case errors.Is(err, sentinel.ErrNotConfigured):
		return KindConfiguration
	case providers.IsProviderError(err), errors.Is(err, providers.ErrProviderNotFound):
		return KindProvider
	case errors.Is(err, identifier.ErrStore):
		return KindIdentifierStore
	case errors.Is(err, fingerprint.ErrSerialize):
		return KindSerialization
	case errors.Is(err, sentinel.ErrUnavailable):
		return KindCache
	default:
		return KindUnknown
	}
}
