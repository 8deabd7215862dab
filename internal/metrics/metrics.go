// file: internal/metrics/metrics.go
// version: 1.1.0
// guid: 2c4e6a8b-9d1f-4a3b-c5d7-0e2a4c6e8a9d

// Package metrics exposes Prometheus instrumentation for searches, downloads
// and jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "librarr"

var (
	// SourceSearches counts per-source search outcomes: ok, error, timeout,
	// circuit_open.
	SourceSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_search_total",
		Help:      "Search calls per source and outcome",
	}, []string{"source", "result"})

	// SourceSearchResults counts results returned per source.
	SourceSearchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_search_results_total",
		Help:      "Results returned per source",
	}, []string{"source"})

	// SearchDuration observes end-to-end aggregation wall time.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "End-to-end search aggregation duration",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"category"})

	// SourceDownloads counts per-source download outcomes.
	SourceDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_download_total",
		Help:      "Download attempts per source and outcome",
	}, []string{"source", "result"})

	// JobsByStatus counts job status transitions.
	JobsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Job status transitions",
	}, []string{"status"})

	// JobsInFlight gauges currently running download jobs.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Download jobs currently running",
	})

	// ScrapeAttempts counts scrape-site attempts per site and outcome.
	ScrapeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_attempts_total",
		Help:      "Chapter scrape attempts per site and outcome",
	}, []string{"site", "result"})

	// PipelineImports counts post-processing import outcomes per target.
	PipelineImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_imports_total",
		Help:      "Post-processing imports per target and outcome",
	}, []string{"target", "result"})
)
