package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ingests        *prometheus.CounterVec
	resolves       *prometheus.CounterVec
	serviceLatency *prometheus.HistogramVec
}

// NewMetrics registers the engine's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ingests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "itinerary",
				Subsystem: "engine",
				Name:      "ingests_total",
				Help:      "Total number of ingest calls by outcome",
			},
			[]string{"outcome"},
		),
		resolves: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "itinerary",
				Subsystem: "engine",
				Name:      "resolutions_total",
				Help:      "Total number of clarification resolutions by outcome",
			},
			[]string{"outcome"},
		),
		serviceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "itinerary",
				Subsystem: "reconstructor",
				Name:      "call_duration_seconds",
				Help:      "Duration of reconstruction service calls in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		),
	}
}

// Ingest counts one ingest outcome (applied, needs_clarification, or an error kind).
func (m *Metrics) Ingest(outcome string) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(outcome).Inc()
}

// Resolve counts one resolution outcome.
func (m *Metrics) Resolve(outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

// ServiceCall records the latency of one reconstruction call.
func (m *Metrics) ServiceCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.serviceLatency.WithLabelValues(result).Observe(d.Seconds())
}
