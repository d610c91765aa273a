package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of a drain tick.
const (
	OutcomeRefreshed = "refreshed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeIdle      = "idle"
)

type Metrics struct {
	Ticks         *prometheus.CounterVec
	Drains        *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	DrainDuration *prometheus.HistogramVec
	Enqueued      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_updater_ticks_total",
			Help: "Scheduler ticks by entity type and outcome",
		}, []string{"entity_type", "outcome"}),
		Drains: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_updater_drain_failures_total",
			Help: "Dropped update requests by entity type and failure kind",
		}, []string{"entity_type", "kind"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muniapi_updater_queue_depth",
			Help: "Pending update requests per entity type",
		}, []string{"entity_type"}),
		DrainDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muniapi_updater_drain_duration_seconds",
			Help:    "Time spent processing one update request",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"entity_type"}),
		Enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "muniapi_updater_enqueued_total",
			Help: "Update requests accepted into a queue by entity type",
		}, []string{"entity_type"}),
	}
}

func (m *Metrics) ObserveTick(entityType, outcome string) {
	m.Ticks.WithLabelValues(entityType, outcome).Inc()
}

func (m *Metrics) ObserveFailure(entityType, kind string) {
	m.Drains.WithLabelValues(entityType, kind).Inc()
}

func (m *Metrics) SetQueueDepth(entityType string, depth int) {
	m.QueueDepth.WithLabelValues(entityType).Set(float64(depth))
}

func (m *Metrics) ObserveDrainDuration(entityType string, seconds float64) {
	m.DrainDuration.WithLabelValues(entityType).Observe(seconds)
}

func (m *Metrics) IncrementEnqueued(entityType string) {
	m.Enqueued.WithLabelValues(entityType).Inc()
}
