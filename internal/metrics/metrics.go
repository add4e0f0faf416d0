// Package metrics exposes Prometheus collectors for the thumbnail service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal            *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec
	scrapeStrategyTotal  *prometheus.CounterVec
	cutoutPathTotal      *prometheus.CounterVec
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbforge_jobs_total",
				Help: "Total number of thumbnail jobs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thumbforge_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		scrapeStrategyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbforge_scrape_strategy_total",
				Help: "Total scraping strategy attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		cutoutPathTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbforge_cutout_path_total",
				Help: "Total background removal attempts, labeled by path (local/remote) and outcome.",
			},
			[]string{"path", "outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "thumbforge_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, dur time.Duration) {
	if stageDurationSeconds == nil {
		return
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(dur.Seconds())
}

// ObserveStrategy counts a scraping strategy attempt.
func ObserveStrategy(strategy, outcome string) {
	if scrapeStrategyTotal == nil {
		return
	}
	scrapeStrategyTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveCutout counts a background removal attempt.
func ObserveCutout(path, outcome string) {
	if cutoutPathTotal == nil {
		return
	}
	cutoutPathTotal.WithLabelValues(path, outcome).Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// WorkerFinished decrements the active worker gauge.
func WorkerFinished() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}
