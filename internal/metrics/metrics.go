package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the parking gate service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Gate metrics
	GateDecisions *prometheus.CounterVec
	GateLatency   *prometheus.HistogramVec

	// Bus metrics
	BusMessages  *prometheus.CounterVec
	BusPublishes *prometheus.CounterVec

	// Occupancy
	OccupiedSlots prometheus.Gauge
	SlotCapacity  prometheus.Gauge

	// Ledger
	Payments *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_gate_decisions_total",
				Help: "Total number of gate decisions by direction, reason and source",
			},
			[]string{"direction", "reason", "source"},
		),
		GateLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parking_gate_decision_duration_seconds",
				Help:    "Time from receiving a gate event to its decision",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"direction"},
		),
		BusMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_bus_messages_total",
				Help: "Total number of consumed bus messages by routing key and result",
			},
			[]string{"topic", "result"},
		),
		BusPublishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_bus_publishes_total",
				Help: "Total number of gate commands published to the bus",
			},
			[]string{"success"},
		),
		OccupiedSlots: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "parking_slots_occupied",
				Help: "Number of slots last reported occupied",
			},
		),
		SlotCapacity: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "parking_slots_capacity",
				Help: "Number of provisioned slots",
			},
		),
		Payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_payments_total",
				Help: "Total number of payment attempts by result",
			},
			[]string{"result"},
		),
	}
}

// RecordDecision counts one gate decision and its latency.
func (m *Metrics) RecordDecision(direction, reason, source string, took time.Duration) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(direction, reason, source).Inc()
	m.GateLatency.WithLabelValues(direction).Observe(took.Seconds())
}

// RecordBusMessage counts one consumed message. result is one of "ok",
// "malformed", "requeued" or "failed".
func (m *Metrics) RecordBusMessage(topic, result string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(topic, result).Inc()
}

// RecordPublish counts one publish attempt.
func (m *Metrics) RecordPublish(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.BusPublishes.WithLabelValues(label).Inc()
}

// SetOccupancy updates the occupancy gauges.
func (m *Metrics) SetOccupancy(occupied, capacity int) {
	if m == nil {
		return
	}
	m.OccupiedSlots.Set(float64(occupied))
	m.SlotCapacity.Set(float64(capacity))
}

// RecordPayment counts one payment attempt by reason code.
func (m *Metrics) RecordPayment(result string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(result).Inc()
}
