package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for presence tracking.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Failures    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_presence_transitions_total",
			Help: "Presence flags written, by state",
		}, []string{"state"}), // state: "online", "offline"

		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_presence_failures_total",
			Help: "Presence flags that could not be written",
		}),
	}
}

func (m *Metrics) IncrementTransition(online bool) {
	if m == nil {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementFailure() {
	if m != nil {
		m.Failures.Inc()
	}
}
