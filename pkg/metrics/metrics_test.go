package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLifecycleMetrics_NilSafe(t *testing.T) {
	var m *LifecycleMetrics
	assert.NotPanics(t, func() {
		m.RecordTransition("SLEEPING", "STARTING")
		m.RecordWake("ok", 1)
		m.RecordHibernate("idle")
		m.RecordOrphan("delete")
		m.SetWorkloadCounts(map[string]int64{"RUNNING": 1})
		m.RecordDebit(1)
		m.RecordSweep("idle", "ok", 0.1)
	})

	var g *GatewayMetrics
	assert.NotPanics(t, func() {
		g.RecordConnection("tcp")
		g.HoldStarted()
		g.HoldEnded(true)
		g.RecordTrigger("ok")
		g.RecordRelayed("upstream", 10)
		g.RecordUDPDrop()
	})
}

func TestLifecycleMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetrics(reg)

	m.RecordTransition("SLEEPING", "STARTING")
	m.RecordTransition("SLEEPING", "STARTING")
	m.RecordWake("failed", 0)
	m.RecordDebit(0.5)
	m.RecordDebit(-3)
	m.SetWorkloadCounts(map[string]int64{"RUNNING": 2, "SLEEPING": 5})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("SLEEPING", "STARTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wakes.WithLabelValues("failed")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.creditsDebit))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.workloads.WithLabelValues("SLEEPING")))
}

func TestRegisterOrReuse_SecondRegistrationShares(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewGatewayMetrics(reg)
	second := NewGatewayMetrics(reg)

	first.RecordConnection("udp")
	second.RecordConnection("udp")

	assert.Equal(t, 2.0, testutil.ToFloat64(second.connections.WithLabelValues("udp")))
}
