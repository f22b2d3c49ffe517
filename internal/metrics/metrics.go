// Package metrics exposes Prometheus metrics for the download engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_http_requests_total",
			Help: "Total number of HTTP attempts by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_http_request_duration_seconds",
			Help:    "HTTP attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_http_retries_total",
			Help: "Total number of retries by reason",
		},
		[]string{"reason"},
	)
	GateExtensions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "danmu_gate_extensions_total",
			Help: "Total number of rate-limit gate extensions",
		},
	)
	GateExtensionSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "danmu_gate_extension_seconds",
			Help:    "Requested gate extension in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 120},
		},
	)
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_tasks_total",
			Help: "Total number of finished tasks by mode and status",
		},
		[]string{"mode", "status"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_task_duration_seconds",
			Help:    "Task processing duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "danmu_workers_active",
			Help: "Number of running download workers",
		},
	)
)

func RecordRequest(endpoint string, status int, err error, duration time.Duration) {
	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

func RecordGateExtension(d time.Duration) {
	GateExtensions.Inc()
	GateExtensionSeconds.Observe(d.Seconds())
}

func RecordTask(mode, status string, duration time.Duration) {
	TasksTotal.WithLabelValues(mode, status).Inc()
	TaskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func WorkerStarted() {
	WorkersActive.Inc()
}

func WorkerStopped() {
	WorkersActive.Dec()
}
