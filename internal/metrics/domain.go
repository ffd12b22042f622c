package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// BookingMetrics counts lifecycle activity in the API process.
type BookingMetrics struct {
	created     prometheus.Counter
	payments    prometheus.Counter
	paidAmount  prometheus.Counter
	transitions *prometheus.CounterVec
	published   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return nil
	}
	m := &BookingMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_created_total", Help: "Bookings created.",
		}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_recorded_total", Help: "Payments recorded.",
		}),
		paidAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_amount_total", Help: "Sum of recorded payment amounts.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "booking_status_transitions_total", Help: "Booking status changes by target status.",
		}, []string{"status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total", Help: "Broker publishes by routing key and result.",
		}, []string{"routing_key", "result"}),
	}
	reg.MustRegister(m.created, m.payments, m.paidAmount, m.transitions, m.published)
	return m
}

func (m *BookingMetrics) BookingCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *BookingMetrics) PaymentRecorded(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payments.Inc()
	m.paidAmount.Add(amount.InexactFloat64())
}

func (m *BookingMetrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *BookingMetrics) EventPublished(routingKey string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(normalizeLabel(routingKey), result).Inc()
}

// RelayMetrics tracks the chat relay's live state.
type RelayMetrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	messages    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return nil
	}
	m := &RelayMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "connections", Help: "Open websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "rooms", Help: "Rooms with at least one member.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "events_total", Help: "Inbound events by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "dropped_total", Help: "Events dropped by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connections, m.rooms, m.messages, m.dropped)
	return m
}

func (m *RelayMetrics) Connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *RelayMetrics) Disconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *RelayMetrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *RelayMetrics) Event(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RelayMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// WorkerMetrics counts consumed broker deliveries.
type WorkerMetrics struct {
	consumed *prometheus.CounterVec
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return nil
	}
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "deliveries_total", Help: "Deliveries by routing key and outcome.",
	}, []string{"routing_key", "outcome"})
	reg.MustRegister(consumed)
	return &WorkerMetrics{consumed: consumed}
}

func (m *WorkerMetrics) Delivery(routingKey, outcome string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(routingKey), outcome).Inc()
}
