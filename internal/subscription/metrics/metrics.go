package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the subscription registry.
type Metrics struct {
	Registrations *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Removals      *prometheus.CounterVec
	Active        *prometheus.GaugeVec
	Coercions     *prometheus.CounterVec
}

// New registers the subscription metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_subscription_registrations_total",
			Help: "Subscriptions registered or replaced, by kind",
		}, []string{"kind"}),

		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_subscription_rejections_total",
			Help: "Subscriptions rejected at registration, by kind",
		}, []string{"kind"}),

		Removals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_subscription_removals_total",
			Help: "Subscriptions removed, by kind",
		}, []string{"kind"}),

		Active: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beacon_subscriptions_active",
			Help: "Registered subscriptions, by kind",
		}, []string{"kind"}),

		Coercions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_filter_coercion_failures_total",
			Help: "Filter values left uncoerced because they did not parse, by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementRegistration(kind string) {
	if m != nil {
		m.Registrations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementRejection(kind string) {
	if m != nil {
		m.Rejections.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementRemoval(kind string) {
	if m != nil {
		m.Removals.WithLabelValues(kind).Inc()
	}
}

// SetActive records the current registry size for kind.
func (m *Metrics) SetActive(kind string, n int) {
	if m != nil {
		m.Active.WithLabelValues(kind).Set(float64(n))
	}
}

func (m *Metrics) IncrementCoercionFailure(kind string) {
	if m != nil {
		m.Coercions.WithLabelValues(kind).Inc()
	}
}
