package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the change feed.
type Metrics struct {
	Records       prometheus.Counter
	Malformed     *prometheus.CounterVec
	EventsQueued  prometheus.Counter
	DispatchError prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Records: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_changefeed_records_total",
			Help: "Change feed records consumed",
		}),
		Malformed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_changefeed_malformed_total",
			Help: "Change feed payloads skipped, by reason",
		}, []string{"reason"}), // reason: "batch", "event"
		EventsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_changefeed_events_total",
			Help: "Change events handed to the dispatcher",
		}),
		DispatchError: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_changefeed_dispatch_errors_total",
			Help: "Records whose dispatch did not complete",
		}),
	}
}

func (m *Metrics) IncrementRecords() {
	if m != nil {
		m.Records.Inc()
	}
}

func (m *Metrics) IncrementMalformed(reason string) {
	if m != nil {
		m.Malformed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) AddEvents(n int) {
	if m != nil {
		m.EventsQueued.Add(float64(n))
	}
}

func (m *Metrics) IncrementDispatchError() {
	if m != nil {
		m.DispatchError.Inc()
	}
}
