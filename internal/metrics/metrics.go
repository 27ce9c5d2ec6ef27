package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DownloadRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_download_requests_total",
		Help: "Total number of /download requests that reached the orchestrator",
	})

	DownloadsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_downloads_exhausted_total",
		Help: "Total number of requests for which every capability failed",
	})

	CapabilityAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_downloader_capability_attempts_total",
		Help: "Total number of capability invocations",
	}, []string{"capability"})

	CapabilityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_downloader_capability_failures_total",
		Help: "Total number of failed capability invocations",
	}, []string{"capability", "committed"})

	CapabilitySuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_downloader_capability_success_total",
		Help: "Total number of capability invocations that delivered media",
	}, []string{"capability"})

	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_downloader_stream_duration_seconds",
		Help:    "Duration of successful capability invocations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"capability"})

	ServedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_served_bytes_total",
		Help: "Total bytes of media written to clients",
	})

	TasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_tasks_started_total",
		Help: "Total number of detached tasks started",
	})

	TasksFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_tasks_finished_total",
		Help: "Total number of detached tasks that finished",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_tasks_failed_total",
		Help: "Total number of detached tasks that failed or could not start",
	})

	TasksSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_downloader_tasks_swept_total",
		Help: "Total number of terminal tasks evicted by retention",
	})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_downloader_event_subscribers",
		Help: "Number of open task event streams",
	})
)
