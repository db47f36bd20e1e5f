// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package metrics exposes Prometheus collectors for the scoring pipeline,
// the scheduler, the store adapter and the reputation caches. All collectors
// are registered via promauto at package load and served at /metrics by the
// operational HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scoring run metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_run_duration_seconds",
			Help:    "Duration of full scoring runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_runs_total",
			Help: "Total scoring runs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "skipped_overlap", "skipped_unhealthy"
	)

	NotesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_notes_scored_total",
			Help: "Total notes processed by scoring runs",
		},
	)

	ItemFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_item_failures_total",
			Help: "Per-note failures caught and excluded from a run",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_status_transitions_total",
			Help: "Note status transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	LastRunSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoring_last_success_timestamp",
			Help: "Unix timestamp of the last successful scoring run",
		},
	)

	// Factorization metrics
	FactorizationIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factorization_iterations",
			Help:    "Training epochs per factorization run",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
		},
	)

	FactorizationConverged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorization_outcomes_total",
			Help: "Factorization outcomes per run",
		},
		[]string{"outcome"}, // "converged", "not_converged", "skipped"
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Total store errors by operation",
		},
		[]string{"operation"},
	)

	StoreHealthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_health_check_failures_total",
			Help: "Failed store health checks",
		},
	)

	// Circuit breaker metrics (store health)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Reputation metrics
	MetricsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "requestor_metrics_cache_hits_total",
			Help: "Requestor metrics cache hits",
		},
	)

	MetricsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "requestor_metrics_cache_misses_total",
			Help: "Requestor metrics cache misses",
		},
	)

	EligibilityDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_denials_total",
			Help: "Request eligibility denials by reason",
		},
		[]string{"reason"},
	)

	// Event pipeline metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_events_published_total",
			Help: "Status change events published by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)
)
