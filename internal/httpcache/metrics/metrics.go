package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of a conditional request evaluation.
const (
	OutcomeNotModified        = "not_modified"
	OutcomeModified           = "modified"
	OutcomeUntagged           = "untagged"
	OutcomePreconditionFailed = "precondition_failed"
)

type Metrics struct {
	Conditional *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Conditional: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_httpcache_conditional_total",
			Help: "Conditional request evaluations by shape (single, list) and outcome",
		}, []string{"shape", "outcome"}),
	}
}

func (m *Metrics) Observe(shape, outcome string) {
	m.Conditional.WithLabelValues(shape, outcome).Inc()
}
