package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for scheduled job execution.
//
// Exposed metrics:
//   - scheduler_job_runs_total: Total job runs by job name and status
//   - scheduler_job_duration_seconds: Duration histogram of job execution
//   - scheduler_followups_scheduled_total: Total follow-up jobs scheduled
//   - scheduler_missed_fires_total: Total daily fires recovered by the watchdog
//   - scheduler_last_success_timestamp: Unix timestamp of the last successful daily run
type Metrics struct {
	JobRunsTotal            *prometheus.CounterVec
	JobDurationSeconds      prometheus.Histogram
	FollowUpsScheduledTotal prometheus.Counter
	MissedFiresTotal        prometheus.Counter
	LastSuccessTimestamp    prometheus.Gauge
}

// NewMetrics creates scheduler metrics. Registration happens automatically
// via promauto.
func NewMetrics() *Metrics {
	return &Metrics{
		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduled job runs by job and status (started/success/failure)",
		}, []string{"job", "status"}),

		JobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduled job execution in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300},
		}),

		FollowUpsScheduledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_followups_scheduled_total",
			Help: "Total number of follow-up jobs scheduled",
		}),

		MissedFiresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_missed_fires_total",
			Help: "Total number of daily fires that were detected as missed and re-run",
		}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_last_success_timestamp",
			Help: "Unix timestamp of the last successful daily job run",
		}),
	}
}

// RecordJobRun increments the run counter for job with the given status.
func (m *Metrics) RecordJobRun(job, status string) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordJobDuration observes a job execution duration in seconds.
func (m *Metrics) RecordJobDuration(seconds float64) {
	if m == nil {
		return
	}
	m.JobDurationSeconds.Observe(seconds)
}

// RecordFollowUpScheduled counts one scheduled follow-up job.
func (m *Metrics) RecordFollowUpScheduled() {
	if m == nil {
		return
	}
	m.FollowUpsScheduledTotal.Inc()
}

// RecordMissedFire counts one missed daily fire recovered by the watchdog.
func (m *Metrics) RecordMissedFire() {
	if m == nil {
		return
	}
	m.MissedFiresTotal.Inc()
}

// RecordLastSuccess records the current time as the last successful daily run.
func (m *Metrics) RecordLastSuccess() {
	if m == nil {
		return
	}
	m.LastSuccessTimestamp.SetToCurrentTime()
}
