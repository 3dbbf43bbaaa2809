package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for socket connections and room fan-out.
type Metrics struct {
	Connections     prometheus.Gauge
	Rooms           prometheus.Gauge
	Emitted         *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	InboundEvents   *prometheus.CounterVec
	RejectedInbound *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Connections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_realtime_connections",
			Help: "Open websocket connections",
		}),
		Rooms: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_realtime_rooms",
			Help: "Rooms with at least one member",
		}),
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_realtime_frames_emitted_total",
			Help: "Frames queued for delivery, by event",
		}, []string{"event"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_realtime_frames_dropped_total",
			Help: "Frames dropped because a connection's send buffer was full",
		}, []string{"event"}),
		InboundEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_realtime_inbound_events_total",
			Help: "Client events handled, by event",
		}, []string{"event"}),
		RejectedInbound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_realtime_inbound_rejected_total",
			Help: "Client frames rejected, by reason",
		}, []string{"reason"}), // reason: "decode", "unknown_event"
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) IncrementEmitted(event string) {
	if m != nil {
		m.Emitted.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncrementDropped(event string) {
	if m != nil {
		m.Dropped.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncrementInbound(event string) {
	if m != nil {
		m.InboundEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.RejectedInbound.WithLabelValues(reason).Inc()
	}
}
