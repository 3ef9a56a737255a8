// Package metrics defines the Prometheus collectors of the orchestrator and the gateway.
// All recording methods are nil-safe: calls on a nil receiver are no-ops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slumber"

// LifecycleMetrics instruments workload state transitions and the sweeps
type LifecycleMetrics struct {
	transitions   *prometheus.CounterVec
	wakes         *prometheus.CounterVec
	wakeDuration  prometheus.Histogram
	hibernations  *prometheus.CounterVec
	orphans       *prometheus.CounterVec
	workloads     *prometheus.GaugeVec
	creditsDebit  prometheus.Counter
	sweepRuns     *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
}

// NewLifecycleMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests rely on.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Workload state transitions",
		}, []string{"from", "to"}),
		wakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wakes_total",
			Help:      "Wake attempts by result",
		}, []string{"result"}),
		wakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wake_duration_seconds",
			Help:      "Time from STARTING to RUNNING",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		hibernations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hibernations_total",
			Help:      "Hibernations by trigger",
		}, []string{"reason"}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_resources_total",
			Help:      "Teardowns that left runtime objects behind",
		}, []string{"operation"}),
		workloads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workloads",
			Help:      "Workloads by state",
		}, []string{"state"}),
		creditsDebit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Credits consumed by running workloads",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Sweep passes by sweep and result",
		}, []string{"sweep", "result"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweep pass",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
	}

	if reg != nil {
		m.transitions = registerOrReuse(reg, m.transitions).(*prometheus.CounterVec)
		m.wakes = registerOrReuse(reg, m.wakes).(*prometheus.CounterVec)
		m.wakeDuration = registerOrReuse(reg, m.wakeDuration).(prometheus.Histogram)
		m.hibernations = registerOrReuse(reg, m.hibernations).(*prometheus.CounterVec)
		m.orphans = registerOrReuse(reg, m.orphans).(*prometheus.CounterVec)
		m.workloads = registerOrReuse(reg, m.workloads).(*prometheus.GaugeVec)
		m.creditsDebit = registerOrReuse(reg, m.creditsDebit).(prometheus.Counter)
		m.sweepRuns = registerOrReuse(reg, m.sweepRuns).(*prometheus.CounterVec)
		m.sweepDuration = registerOrReuse(reg, m.sweepDuration).(*prometheus.HistogramVec)
	}
	return m
}

// RecordTransition counts a state change
func (m *LifecycleMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordWake counts a finished wake. Successful wakes also observe their duration.
func (m *LifecycleMetrics) RecordWake(result string, seconds float64) {
	if m == nil {
		return
	}
	m.wakes.WithLabelValues(result).Inc()
	if result == "ok" {
		m.wakeDuration.Observe(seconds)
	}
}

// RecordHibernate counts a hibernation
func (m *LifecycleMetrics) RecordHibernate(reason string) {
	if m == nil {
		return
	}
	m.hibernations.WithLabelValues(reason).Inc()
}

// RecordOrphan counts a failed teardown
func (m *LifecycleMetrics) RecordOrphan(operation string) {
	if m == nil {
		return
	}
	m.orphans.WithLabelValues(operation).Inc()
}

// SetWorkloadCounts replaces the per-state gauge values
func (m *LifecycleMetrics) SetWorkloadCounts(counts map[string]int64) {
	if m == nil {
		return
	}
	m.workloads.Reset()
	for state, n := range counts {
		m.workloads.WithLabelValues(state).Set(float64(n))
	}
}

// RecordDebit adds consumed credits
func (m *LifecycleMetrics) RecordDebit(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsDebit.Add(amount)
}

// RecordSweep counts a sweep pass and observes its duration
func (m *LifecycleMetrics) RecordSweep(sweep, result string, seconds float64) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(sweep, result).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(seconds)
}

// registerOrReuse registers c, returning the existing collector if an
// identical one was registered before. Other errors panic.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
