package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks publish pipeline outcomes.
type Metrics struct {
	PublishTotal     *prometheus.CounterVec
	PublishDuration  prometheus.Histogram
	SendRetriesTotal prometheus.Counter
	QuizPublishTotal *prometheus.CounterVec
}

// NewMetrics creates and registers publish metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lessonbot_publish_total",
				Help: "Total number of lesson publish attempts by outcome",
			},
			[]string{"outcome"},
		),
		PublishDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lessonbot_publish_duration_seconds",
				Help:    "Duration of lesson publish attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SendRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lessonbot_publish_send_retries_total",
				Help: "Total number of delivery retries across publish attempts",
			},
		),
		QuizPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lessonbot_quiz_publish_total",
				Help: "Total number of quiz publish attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordPublish increments the publish counter for the given outcome.
func (m *Metrics) RecordPublish(outcome string) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(outcome).Inc()
}

// RecordPublishDuration observes the duration of a publish attempt.
func (m *Metrics) RecordPublishDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PublishDuration.Observe(seconds)
}

// RecordRetries adds the number of extra delivery attempts made.
func (m *Metrics) RecordRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SendRetriesTotal.Add(float64(n))
}

// RecordQuizPublish increments the quiz publish counter for the given outcome.
func (m *Metrics) RecordQuizPublish(outcome string) {
	if m == nil {
		return
	}
	m.QuizPublishTotal.WithLabelValues(outcome).Inc()
}
