// Package metrics provides Prometheus metrics for device sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correre_sessions_started_total",
			Help: "Total number of device sessions started",
		},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correre_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"status"},
	)

	sessionLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "correre_session_live",
			Help: "Whether a device session is currently live",
		},
	)

	linkAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correre_link_attempts_total",
			Help: "Total number of transport link attempts",
		},
	)

	// Task metrics
	tasksQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "correre_tasks_queued",
			Help: "Number of tasks waiting for the session worker",
		},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correre_tasks_total",
			Help: "Total number of executed tasks",
		},
		[]string{"op", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correre_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correre_bytes_downloaded_total",
			Help: "Total bytes downloaded from devices",
		},
	)
)

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart counts a new session and marks it live.
func RecordSessionStart() {
	sessionsStarted.Inc()
	sessionLive.Set(1)
}

// RecordSessionEnd marks that no session is live.
func RecordSessionEnd() {
	sessionLive.Set(0)
}

// RecordTransition counts a session state transition.
func RecordTransition(status string) {
	sessionTransitions.WithLabelValues(status).Inc()
}

// RecordLinkAttempt counts one transport link attempt.
func RecordLinkAttempt() {
	linkAttempts.Inc()
}

// SetTasksQueued records the number of waiting tasks.
func SetTasksQueued(n int) {
	tasksQueued.Set(float64(n))
}

// RecordTask records an executed task.
func RecordTask(op string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	tasksTotal.WithLabelValues(op, status).Inc()
	taskDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordDownload counts downloaded bytes.
func RecordDownload(bytes int) {
	bytesDownloaded.Add(float64(bytes))
}
