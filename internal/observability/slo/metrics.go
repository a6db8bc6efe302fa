// Package slo tracks service level objectives for the lesson bot.
package slo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets define the service level objectives for the bot.
// These targets are used to measure and monitor posting reliability.
const (
	// PublishSuccessSLO defines the target success ratio for lesson
	// publishes over a rolling window (99% of daily posts succeed).
	PublishSuccessSLO = 0.99

	// PostFreshnessSLO defines the maximum acceptable age of the last
	// successful post. One daily fire plus scheduling slack.
	PostFreshnessSLO = 25 * time.Hour
)

// SLO tracking metrics.
// These gauges are updated periodically from the posting attempt log to
// track whether the bot is meeting its objectives.
var (
	// SLOPublishSuccess tracks the publish success ratio (0-1)
	// calculated as: successful_attempts / total_attempts
	SLOPublishSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_publish_success_ratio",
			Help: "Publish success ratio (0-1), target: 0.99",
		},
	)

	// SLOPostFreshness tracks seconds since the last successful post.
	// A value above 90000 (25h) means a daily post was missed.
	SLOPostFreshness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_post_freshness_seconds",
			Help: "Seconds since the last successful lesson post, target: < 90000",
		},
	)
)

// UpdatePublishSuccess updates the publish success ratio metric.
//
// Example calculation:
//
//	ratio := float64(successfulAttempts) / float64(totalAttempts)
//	slo.UpdatePublishSuccess(ratio)
func UpdatePublishSuccess(ratio float64) {
	SLOPublishSuccess.Set(ratio)
}

// UpdatePostFreshness updates the post freshness metric from the time of
// the last successful post. A nil lastSuccess (nothing ever published)
// reports the freshness target itself so dashboards alert immediately.
func UpdatePostFreshness(lastSuccess *time.Time, now time.Time) {
	if lastSuccess == nil {
		SLOPostFreshness.Set(PostFreshnessSLO.Seconds())
		return
	}
	SLOPostFreshness.Set(now.Sub(*lastSuccess).Seconds())
}
