// Package metrics declares the process-wide prometheus collectors this
// service exposes at /metrics: upload outcomes, pipeline completions, LLM
// call outcomes, and pipeline wall-clock duration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_uploads_accepted_total",
		Help: "Uploads that parsed successfully and started a session.",
	})

	UploadsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_uploads_rejected_total",
		Help: "Uploads rejected for a malformed body, bad archive, or oversize payload.",
	})

	PipelineCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_pipeline_completions_total",
		Help: "Pipeline runs that reached the complete stage.",
	})

	PipelineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_pipeline_failures_total",
		Help: "Pipeline runs that ended in the error stage.",
	})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eras_pipeline_duration_seconds",
		Help:    "Wall-clock time from Run start to completion or failure, per session.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	LLMCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_llm_calls_total",
		Help: "Provider chat calls attempted, including retries.",
	})

	LLMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_llm_retries_total",
		Help: "Provider chat calls retried after a transient failure.",
	})

	LLMFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eras_llm_fallbacks_total",
		Help: "Era namings that fell back to the deterministic title/summary.",
	})
)
