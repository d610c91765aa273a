package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Minted        *prometheus.CounterVec
	ResolveErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Minted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_identifier_minted_total",
			Help: "Canonical ids minted by entity type",
		}, []string{"entity_type"}),
		ResolveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_identifier_resolve_errors_total",
			Help: "Identifier store failures during resolve by entity type",
		}, []string{"entity_type"}),
	}
}

func (m *Metrics) IncrementMinted(entityType string) {
	m.Minted.WithLabelValues(entityType).Inc()
}

func (m *Metrics) IncrementResolveErrors(entityType string) {
	m.ResolveErrors.WithLabelValues(entityType).Inc()
}
