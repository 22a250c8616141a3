// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring conversation
// turns and the retrieval index. Metrics include:
//   - Turn counters (by mode and status)
//   - Turn latency histograms
//   - Classifier degradation counters (by classifier kind)
//   - Index build counters and chunk gauges
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

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "echomind"

const conversationSubsystem = "conversation"
const indexSubsystem = "index"

// TurnMetrics holds all Prometheus metrics for conversation and index
// operations. Initialize once at startup via InitMetrics().
type TurnMetrics struct {
	// TurnsTotal counts conversation turns by mode and status.
	// Labels: mode (standard, file, museum, file_maxim_evaluation),
	// status (success, degraded, error)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: mode
	TurnDurationSeconds *prometheus.HistogramVec

	// ClassifierErrorsTotal counts classifier calls absorbed into degraded
	// payloads. Labels: classifier (content_bias, dialogue_bias,
	// mental_state, maxim_evaluation)
	ClassifierErrorsTotal *prometheus.CounterVec

	// ActiveTurns tracks turns currently in flight. Labels: mode
	ActiveTurns *prometheus.GaugeVec

	// IndexBuildsTotal counts index rebuild passes. Labels: status
	IndexBuildsTotal *prometheus.CounterVec

	// IndexChunks reports the chunk count after the last build.
	IndexChunks prometheus.Gauge

	// RetrievalsTotal counts retrieval calls by status.
	// Labels: status (hit, empty, error)
	RetrievalsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *TurnMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *TurnMetrics {
	DefaultMetrics = &TurnMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: conversationSubsystem,
				Name:      "turns_total",
				Help:      "Total conversation turns by mode and status",
			},
			[]string{"mode", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: conversationSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end conversation turn latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"mode"},
		),

		ClassifierErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: conversationSubsystem,
				Name:      "classifier_errors_total",
				Help:      "Classifier failures absorbed into degraded turn payloads",
			},
			[]string{"classifier"},
		),

		ActiveTurns: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: conversationSubsystem,
				Name:      "active_turns",
				Help:      "Conversation turns currently in flight",
			},
			[]string{"mode"},
		),

		IndexBuildsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: indexSubsystem,
				Name:      "builds_total",
				Help:      "Index rebuild passes by status",
			},
			[]string{"status"},
		),

		IndexChunks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: indexSubsystem,
				Name:      "chunks",
				Help:      "Chunks held by the index after the last build",
			},
		),

		RetrievalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: indexSubsystem,
				Name:      "retrievals_total",
				Help:      "Retrieval calls by outcome",
			},
			[]string{"status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Label Values
// =============================================================================

// TurnStatus labels a completed turn for metrics.
type TurnStatus string

const (
	// TurnStatusSuccess is a turn with all capability calls succeeding.
	TurnStatusSuccess TurnStatus = "success"

	// TurnStatusDegraded is a turn that completed with at least one
	// capability failure absorbed into the payload.
	TurnStatusDegraded TurnStatus = "degraded"

	// TurnStatusError is a turn that failed outright (storage error,
	// validation error).
	TurnStatusError TurnStatus = "error"
)

// Classifier names for the degradation counter.
const (
	ClassifierContentBias     = "content_bias"
	ClassifierDialogueBias    = "dialogue_bias"
	ClassifierMentalState     = "mental_state"
	ClassifierMaximEvaluation = "maxim_evaluation"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed turn with its latency.
func (m *TurnMetrics) RecordTurn(mode string, status TurnStatus, seconds float64) {
	m.TurnsTotal.WithLabelValues(mode, string(status)).Inc()
	m.TurnDurationSeconds.WithLabelValues(mode).Observe(seconds)
}

// RecordClassifierError records one absorbed classifier failure.
func (m *TurnMetrics) RecordClassifierError(classifier string) {
	m.ClassifierErrorsTotal.WithLabelValues(classifier).Inc()
}

// TurnStarted increments the in-flight gauge.
func (m *TurnMetrics) TurnStarted(mode string) {
	m.ActiveTurns.WithLabelValues(mode).Inc()
}

// TurnEnded decrements the in-flight gauge.
func (m *TurnMetrics) TurnEnded(mode string) {
	m.ActiveTurns.WithLabelValues(mode).Dec()
}

// RecordIndexBuild records one rebuild pass and the resulting chunk count.
func (m *TurnMetrics) RecordIndexBuild(success bool, chunks int) {
	status := "success"
	if !success {
		status = "error"
	}
	m.IndexBuildsTotal.WithLabelValues(status).Inc()
	if success {
		m.IndexChunks.Set(float64(chunks))
	}
}

// RecordRetrieval records one retrieval call outcome.
func (m *TurnMetrics) RecordRetrieval(status string) {
	m.RetrievalsTotal.WithLabelValues(status).Inc()
}
