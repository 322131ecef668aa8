package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gamma client metrics
var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "submissions_total",
			Help:      "Total generation submissions by outcome",
		},
		[]string{"outcome"},
	)

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "polls_total",
			Help:      "Total status queries by observed status or failure",
		},
		[]string{"result"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "jobs_total",
			Help:      "Generation jobs by terminal outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "job_duration_seconds",
			Help:      "Time from submission to terminal state",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "downloads_total",
			Help:      "Artifact downloads by outcome",
		},
		[]string{"outcome"},
	)

	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gamma",
			Subsystem: "client",
			Name:      "download_bytes_total",
			Help:      "Total artifact bytes written to disk",
		},
	)
)

func RecordSubmission(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}

func RecordPoll(result string) {
	PollsTotal.WithLabelValues(result).Inc()
}

// RecordJob records a job reaching a terminal outcome after durationSec seconds.
func RecordJob(outcome string, durationSec float64) {
	JobsTotal.WithLabelValues(outcome).Inc()
	JobDuration.WithLabelValues(outcome).Observe(durationSec)
}

func RecordDownload(outcome string, bytes int64) {
	DownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		DownloadBytesTotal.Add(float64(bytes))
	}
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
