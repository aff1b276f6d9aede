// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring question
// answering operations. Metrics include:
//   - Query counters and latency histograms by answering method
//   - Tool execution counters by tool and status
//   - Session lifecycle counters and the active-session gauge
//   - Retrieval counters for fetched and filtered documents
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "biegeai"

// Subsystem for query orchestration metrics
const querySubsystem = "query"

// QueryMetrics holds all Prometheus metrics for question answering.
//
// # Thread Safety
//
// All operations are thread-safe.
type QueryMetrics struct {
	// QueriesTotal counts answered questions.
	// Labels: method (direct, tools)
	QueriesTotal *prometheus.CounterVec

	// QueryDurationSeconds measures end-to-end answering latency.
	// Labels: method (direct, tools)
	QueryDurationSeconds *prometheus.HistogramVec

	// ToolCallsTotal counts executed tool calls.
	// Labels: tool, status (ok, error)
	ToolCallsTotal *prometheus.CounterVec

	// DuplicateToolCallsTotal counts rejected duplicate tool requests.
	DuplicateToolCallsTotal prometheus.Counter

	// SessionsRemovedTotal counts removed sessions.
	// Labels: reason (expired, evicted)
	SessionsRemovedTotal *prometheus.CounterVec

	// ActiveSessions tracks sessions currently held in memory.
	ActiveSessions prometheus.Gauge

	// DocsRetrievedTotal counts knowledge candidates fetched from the
	// vector store.
	DocsRetrievedTotal prometheus.Counter

	// DocsUsedTotal counts candidates that survived relevance filtering.
	DocsUsedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of QueryMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *QueryMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *QueryMetrics {
	DefaultMetrics = &QueryMetrics{
		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "queries_total",
				Help:      "Total answered questions by method",
			},
			[]string{"method"},
		),

		QueryDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end question answering latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"method"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "tool_calls_total",
				Help:      "Total executed tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		DuplicateToolCallsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "duplicate_tool_calls_total",
				Help:      "Total rejected duplicate tool requests",
			},
		),

		SessionsRemovedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "sessions_removed_total",
				Help:      "Total removed conversation sessions by reason",
			},
			[]string{"reason"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "active_sessions",
				Help:      "Conversation sessions currently held in memory",
			},
		),

		DocsRetrievedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "docs_retrieved_total",
				Help:      "Total knowledge candidates fetched from the vector store",
			},
		),

		DocsUsedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "docs_used_total",
				Help:      "Total knowledge candidates that survived relevance filtering",
			},
		),
	}
	return DefaultMetrics
}

// =============================================================================
// Recording Helpers
// =============================================================================

// Helpers tolerate an uninitialized DefaultMetrics so that unit tests can
// exercise callers without touching the global registry.

// RecordQuery records one answered question.
func RecordQuery(method string, seconds float64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.QueriesTotal.WithLabelValues(method).Inc()
	DefaultMetrics.QueryDurationSeconds.WithLabelValues(method).Observe(seconds)
}

// RecordToolCall records one executed tool call.
func RecordToolCall(tool string, failed bool) {
	if DefaultMetrics == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	DefaultMetrics.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordDuplicateToolCalls records rejected duplicate tool requests.
func RecordDuplicateToolCalls(count int) {
	if DefaultMetrics == nil || count <= 0 {
		return
	}
	DefaultMetrics.DuplicateToolCallsTotal.Add(float64(count))
}

// RecordSessionRemovals records session cleanup counts.
func RecordSessionRemovals(expired, evicted int) {
	if DefaultMetrics == nil {
		return
	}
	if expired > 0 {
		DefaultMetrics.SessionsRemovedTotal.WithLabelValues("expired").Add(float64(expired))
	}
	if evicted > 0 {
		DefaultMetrics.SessionsRemovedTotal.WithLabelValues("evicted").Add(float64(evicted))
	}
}

// SetActiveSessions updates the active-session gauge.
func SetActiveSessions(n int) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ActiveSessions.Set(float64(n))
}

// RecordRetrieval records retrieval candidate counts for one query.
func RecordRetrieval(retrieved, used int) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.DocsRetrievedTotal.Add(float64(retrieved))
	DefaultMetrics.DocsUsedTotal.Add(float64(used))
}
