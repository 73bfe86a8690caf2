// Package metrics provides Prometheus metrics for the detection engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "evtxhunter"
)

// Engine run metrics
var (
	// RecordsEvaluatedTotal counts records that reached rule evaluation.
	RecordsEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "records_evaluated_total",
			Help:      "Total records passed through the detection orchestrator",
		},
	)

	// RecordsFilteredTotal counts records dropped by the channel/event-id/
	// time-range pre-filter before reaching any rule.
	RecordsFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "records_filtered_total",
			Help:      "Total records dropped by the pre-filter",
		},
	)

	// AlertsEmittedTotal counts alerts emitted, by rule ID.
	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "alerts_emitted_total",
			Help:      "Total alerts emitted, by rule",
		},
		[]string{"rule_id", "level"},
	)

	// AlertsDedupedTotal counts alerts dropped by Alert Store dedup.
	AlertsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "alerts_deduped_total",
			Help:      "Total alerts dropped as duplicates by the alert store",
		},
	)

	// RulesFailedTotal counts rules disabled mid-run after a panic.
	RulesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rules_failed_total",
			Help:      "Total rules disabled for the remainder of a run after panicking",
		},
		[]string{"rule_id"},
	)

	// BatchDuration tracks per-batch evaluation latency.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Time to evaluate one batch of records across all rules",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// Rule loader metrics
var (
	// RulesLoaded tracks how many rules are currently loaded.
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Number of rules currently loaded",
		},
	)

	// RuleLoadErrorsTotal counts rule files that failed to parse.
	RuleLoadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "load_errors_total",
			Help:      "Total rule files that failed to parse during a load",
		},
	)
)

// Sink metrics
var (
	// SinkWriteDuration tracks alert sink write latency.
	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Alert sink write latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	// SinkWriteErrors counts sink write errors.
	SinkWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Total alert sink write errors",
		},
		[]string{"backend"},
	)
)

// API metrics
var (
	// APIRequestsTotal counts HTTP requests by method, path, and status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total HTTP requests to the alerts API",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration tracks HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
