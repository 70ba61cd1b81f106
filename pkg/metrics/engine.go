package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records allocation and reimbursement activity. A nil
// *EngineMetrics is a no-op.
type EngineMetrics struct {
	duration       *prometheus.HistogramVec
	packages       prometheus.Counter
	reimbursements *prometheus.CounterVec
	refunded       prometheus.Counter
	lockContention *prometheus.CounterVec
	jobs           *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderflow_operation_duration_seconds",
		Help:    "Duration of order operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	packages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_packages_total",
		Help: "Packages produced by stock allocation runs.",
	})
	reimbursements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_reimbursements_total",
		Help: "Reimbursement settlement outcomes.",
	}, []string{"status"})
	refunded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_refunded_amount_total",
		Help: "Sum of refund amounts issued.",
	})
	lockContention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_lock_contention_total",
		Help: "Order lock acquisitions that found the lock already held.",
	}, []string{"scope"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_jobs_total",
		Help: "Maintenance job runs by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, packages, reimbursements, refunded, lockContention, jobs)
	return &EngineMetrics{
		duration:       duration,
		packages:       packages,
		reimbursements: reimbursements,
		refunded:       refunded,
		lockContention: lockContention,
		jobs:           jobs,
	}
}

// ObserveDuration records how long the named operation took.
func (m *EngineMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func (m *EngineMetrics) AddPackages(n int) {
	if m == nil || m.packages == nil || n <= 0 {
		return
	}
	m.packages.Add(float64(n))
}

// IncReimbursement counts a settlement attempt ending in status.
func (m *EngineMetrics) IncReimbursement(status string) {
	if m == nil || m.reimbursements == nil {
		return
	}
	m.reimbursements.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *EngineMetrics) AddRefunded(amount float64) {
	if m == nil || m.refunded == nil || amount <= 0 {
		return
	}
	m.refunded.Add(amount)
}

func (m *EngineMetrics) IncLockContention(scope string) {
	if m == nil || m.lockContention == nil {
		return
	}
	m.lockContention.WithLabelValues(normalizeLabel(scope)).Inc()
}

// IncJob counts one maintenance job run ending in outcome.
func (m *EngineMetrics) IncJob(job, outcome string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
