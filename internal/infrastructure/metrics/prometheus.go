package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/travel-approval/internal/application/port"
)

const namespace = "travel_approval"

// Recorder exports workflow metrics to Prometheus
type Recorder struct {
	decisions           *prometheus.CounterVec
	decisionDuration    *prometheus.HistogramVec
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
}

// NewRecorder registers the workflow collectors on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of submitted decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		decisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_duration_seconds",
				Help:      "Duration of decision processing in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"action"},
		),
		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_created_total",
				Help:      "Total number of notifications stored",
			},
			[]string{"type"},
		),
		notificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Total number of notifications that could not be stored",
			},
			[]string{"type"},
		),
	}
}

// ObserveDecision counts a decision and records its latency
func (r *Recorder) ObserveDecision(action, outcome string, elapsed time.Duration) {
	r.decisions.WithLabelValues(action, outcome).Inc()
	r.decisionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// NotificationCreated counts a stored notification
func (r *Recorder) NotificationCreated(notificationType string) {
	r.notificationsSent.WithLabelValues(notificationType).Inc()
}

// NotificationFailed counts a notification that was dropped
func (r *Recorder) NotificationFailed(notificationType string) {
	r.notificationsFailed.WithLabelValues(notificationType).Inc()
}

var _ port.MetricsRecorder = (*Recorder)(nil)
