// Package metrics exposes Prometheus collectors for the generation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "animgen"

var (
	// GenerationsTotal counts finished requests by final state.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "generations_total",
			Help:      "Total number of generation requests by final state",
		},
		[]string{"state"},
	)

	// AttemptsTotal counts render attempts by outcome ("success" or a render error kind).
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "attempts_total",
			Help:      "Total number of render attempts by outcome",
		},
		[]string{"outcome"},
	)

	AttemptsPerGeneration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "attempts_per_generation",
			Help:      "Number of render attempts used per request",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of manim subprocess runs",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of model calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	StaticFixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autofix",
			Name:      "applied_total",
			Help:      "Static source fixes applied by rule",
		},
		[]string{"rule"},
	)

	DiagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "diagnoses_total",
			Help:      "Render failure diagnoses by category",
		},
		[]string{"category"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		},
		[]string{"method", "path"},
	)

	// InFlightGenerations is the number of requests currently holding a
	// generation slot.
	InFlightGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "inflight_generations",
			Help:      "Generation requests currently running",
		},
	)
)
