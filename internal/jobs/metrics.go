// Package jobmetrics instruments the stock snapshot and ledger rollup jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by every background job.
type Metrics struct {
	runs           *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	lastSuccess    *prometheus.GaugeVec
	snapshotRows   prometheus.Gauge
	rolledAccounts prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_job_runs_total",
			Help: "Job executions by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 600},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		snapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backoffice_stock_snapshot_rows",
			Help: "warehouse_stocks rows written by the latest snapshot.",
		}),
		rolledAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backoffice_ledger_rollup_accounts",
			Help: "Accounts materialised by the latest ledger rollup.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.snapshotRows, m.rolledAccounts)
	return m
}

// Run measures one execution of a task.
type Run struct {
	metrics *Metrics
	task    string
	started time.Time
}

// Track starts measuring task. A nil receiver yields a no-op run.
func (m *Metrics) Track(task string) *Run {
	return &Run{metrics: m, task: task, started: time.Now()}
}

// End records the outcome and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		r.metrics.lastSuccess.WithLabelValues(r.task).SetToCurrentTime()
	}
	r.metrics.runs.WithLabelValues(r.task, outcome).Inc()
	r.metrics.duration.WithLabelValues(r.task).Observe(time.Since(r.started).Seconds())
	return err
}

// SnapshotRows records the size of the latest stock snapshot.
func (m *Metrics) SnapshotRows(rows int) {
	if m != nil {
		m.snapshotRows.Set(float64(rows))
	}
}

// RolledAccounts records how many accounts the latest rollup wrote.
func (m *Metrics) RolledAccounts(n int) {
	if m != nil {
		m.rolledAccounts.Set(float64(n))
	}
}
