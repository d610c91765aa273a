package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for cache lookups.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

type Metrics struct {
	Lookups   *prometheus.CounterVec
	PutErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_fingerprint_lookups_total",
			Help: "Fingerprint cache lookups by result",
		}, []string{"result"}),
		PutErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "muniapi_fingerprint_put_errors_total",
			Help: "Fingerprint writes that failed",
		}),
	}
}

func (m *Metrics) ObserveLookup(result string) {
	m.Lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementPutErrors() {
	m.PutErrors.Inc()
}
