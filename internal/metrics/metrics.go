package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ori_pipeline_runs_total",
			Help: "Total number of pipeline runs by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ori_stage_duration_seconds",
			Help:    "Stage execution duration in seconds, completion and search included",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ori_stage_failures_total",
			Help: "Total number of stages that ended in an upstream error",
		},
		[]string{"stage"},
	)

	// Upstream metrics
	CompletionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ori_completion_retries_total",
			Help: "Total number of retried completion calls",
		},
		[]string{"stage"},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ori_search_requests_total",
			Help: "Total number of web search requests by outcome",
		},
		[]string{"outcome"},
	)

	// Streaming metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ori_progress_events_total",
			Help: "Total number of progress events emitted by type",
		},
		[]string{"type"},
	)
)
