package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notify engine.
type Metrics struct {
	Events            *prometheus.CounterVec
	Outcomes          *prometheus.CounterVec
	InterestFailures  *prometheus.CounterVec
	BroadcastFailures *prometheus.CounterVec
	ProcessLatency    prometheus.Histogram
	BroadcastLatency  prometheus.Histogram
}

// New registers the notify metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_notify_events_total",
			Help: "Change events received, by kind and operation",
		}, []string{"kind", "operation"}),

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_notify_outcomes_total",
			Help: "Match outcomes produced, by kind and effective operation",
		}, []string{"kind", "operation"}),

		InterestFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_notify_interest_failures_total",
			Help: "Interests skipped for an event because they could not be evaluated",
		}, []string{"kind"}),

		BroadcastFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_notify_broadcast_failures_total",
			Help: "Payloads that could not be resolved or emitted, by stage",
		}, []string{"kind", "stage"}), // stage: "count", "fetch", "emit"

		ProcessLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_notify_process_duration_seconds",
			Help:    "Duration of matching one change event against the registry",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		BroadcastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_notify_broadcast_duration_seconds",
			Help:    "Duration of resolving and emitting the outcomes of one change event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementEvent(kind, operation string) {
	if m != nil {
		m.Events.WithLabelValues(kind, operation).Inc()
	}
}

func (m *Metrics) IncrementOutcome(kind, operation string) {
	if m != nil {
		m.Outcomes.WithLabelValues(kind, operation).Inc()
	}
}

func (m *Metrics) IncrementInterestFailure(kind string) {
	if m != nil {
		m.InterestFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementBroadcastFailure(kind, stage string) {
	if m != nil {
		m.BroadcastFailures.WithLabelValues(kind, stage).Inc()
	}
}

func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveBroadcastLatency(d time.Duration) {
	if m != nil {
		m.BroadcastLatency.Observe(d.Seconds())
	}
}
