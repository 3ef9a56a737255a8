package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics instruments one gateway process
type GatewayMetrics struct {
	connections  *prometheus.CounterVec
	held         prometheus.Gauge
	holdTimeouts prometheus.Counter
	triggers     *prometheus.CounterVec
	relayed      *prometheus.CounterVec
	udpDropped   prometheus.Counter
}

// NewGatewayMetrics creates the collectors and registers them with reg
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Accepted client connections or UDP sessions",
		}, []string{"protocol"}),
		held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "held_connections",
			Help:      "Clients currently held while the workload wakes",
		}),
		holdTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "hold_timeouts_total",
			Help:      "Held clients closed because the workload never came up",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "wake_triggers_total",
			Help:      "Wake requests sent to the orchestrator by result",
		}, []string{"result"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "relayed_bytes_total",
			Help:      "Bytes relayed by direction",
		}, []string{"direction"}),
		udpDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "udp_dropped_datagrams_total",
			Help:      "Datagrams dropped from full hold buffers",
		}),
	}

	if reg != nil {
		m.connections = registerOrReuse(reg, m.connections).(*prometheus.CounterVec)
		m.held = registerOrReuse(reg, m.held).(prometheus.Gauge)
		m.holdTimeouts = registerOrReuse(reg, m.holdTimeouts).(prometheus.Counter)
		m.triggers = registerOrReuse(reg, m.triggers).(*prometheus.CounterVec)
		m.relayed = registerOrReuse(reg, m.relayed).(*prometheus.CounterVec)
		m.udpDropped = registerOrReuse(reg, m.udpDropped).(prometheus.Counter)
	}
	return m
}

// RecordConnection counts an accepted client
func (m *GatewayMetrics) RecordConnection(protocol string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(protocol).Inc()
}

// HoldStarted marks a client as held
func (m *GatewayMetrics) HoldStarted() {
	if m == nil {
		return
	}
	m.held.Inc()
}

// HoldEnded releases a held client; timedOut counts it as a hold timeout
func (m *GatewayMetrics) HoldEnded(timedOut bool) {
	if m == nil {
		return
	}
	m.held.Dec()
	if timedOut {
		m.holdTimeouts.Inc()
	}
}

// RecordTrigger counts a wake request
func (m *GatewayMetrics) RecordTrigger(result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(result).Inc()
}

// RecordRelayed adds relayed bytes, direction is "upstream" or "downstream"
func (m *GatewayMetrics) RecordRelayed(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.relayed.WithLabelValues(direction).Add(float64(n))
}

// RecordUDPDrop counts a dropped datagram
func (m *GatewayMetrics) RecordUDPDrop() {
	if m == nil {
		return
	}
	m.udpDropped.Inc()
}
