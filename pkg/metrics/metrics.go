// Package metrics exposes Prometheus instruments for episode execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_inference_calls_total",
		Help: "Inference calls made on shared sessions, by reply status.",
	}, []string{"status"})

	InferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_inference_seconds",
		Help:    "Latency of inference calls on shared sessions.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	Recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_recovery_total",
		Help: "Structured-output parses, by mode and outcome (first, corrected, failed).",
	}, []string{"mode", "outcome"})

	Episodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_episodes_total",
		Help: "Finished episodes, by task and status.",
	}, []string{"task", "status"})
)
