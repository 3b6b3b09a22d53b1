// Package jobmetrics instruments the ledger jobs run by the worker.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	drift       prometheus.Gauge
	now         func() time.Time
}

// NewMetrics registers the collectors with reg. A nil reg builds unregistered
// collectors, which is what most tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resort_jobs_total",
			Help: "Job executions by job name and status.",
		}, []string{"job", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resort_job_duration_seconds",
			Help:    "Wall time of job executions.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resort_job_items_total",
			Help: "Entities handled by jobs, by outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resort_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each job.",
		}, []string{"job"}),
		drift: f.NewGauge(prometheus.GaugeOpts{
			Name: "resort_ledger_balance_drift_accounts",
			Help: "Accounts whose stored balance disagreed with their transactions at the last check.",
		}),
		now: time.Now,
	}
}

// Tracker times one job run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{m: m, job: job}
	if m != nil {
		t.start = m.now()
	}
	return t
}

// End records the outcome of the run and hands err back.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	now := t.m.now()
	t.m.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	if err != nil {
		t.m.runs.WithLabelValues(t.job, "failure").Inc()
		return err
	}
	t.m.runs.WithLabelValues(t.job, "success").Inc()
	t.m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	return nil
}

// AddItems counts entities a job handled, e.g. outcome "posted" or "skipped".
func (m *Metrics) AddItems(job, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(job, outcome).Add(float64(n))
}

// SetBalanceDrift publishes the number of drifting accounts.
func (m *Metrics) SetBalanceDrift(accounts int) {
	if m == nil {
		return
	}
	m.drift.Set(float64(accounts))
}
