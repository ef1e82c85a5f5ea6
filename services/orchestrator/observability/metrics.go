// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the orchestrator.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "patentscout"

const runsSubsystem = "runs"

// RunMetrics holds the Prometheus metrics for extraction runs.
type RunMetrics struct {
	// StartedTotal counts extraction runs started via the API.
	StartedTotal prometheus.Counter

	// DecisionsTotal counts checkpoint decisions by action.
	// Labels: action (approve, reject, edit, invalid)
	DecisionsTotal *prometheus.CounterVec

	// CompletedTotal counts runs reaching a terminal status.
	// Labels: status (done, failed, retries_exhausted, cancelled)
	CompletedTotal *prometheus.CounterVec

	// SuspendedRuns tracks runs currently awaiting a decision.
	SuspendedRuns prometheus.Gauge

	// ReviewLatencySeconds measures how long runs wait at the gate.
	ReviewLatencySeconds prometheus.Histogram
}

var (
	defaultMetrics *RunMetrics
	initOnce       sync.Once
)

// InitMetrics registers the run metrics with the default registry.
// Safe to call multiple times; only the first call registers.
func InitMetrics() *RunMetrics {
	initOnce.Do(func() {
		defaultMetrics = &RunMetrics{
			StartedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: runsSubsystem,
				Name:      "started_total",
				Help:      "Extraction runs started",
			}),
			DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: runsSubsystem,
				Name:      "decisions_total",
				Help:      "Checkpoint decisions by action",
			}, []string{"action"}),
			CompletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: runsSubsystem,
				Name:      "completed_total",
				Help:      "Runs reaching a terminal status",
			}, []string{"status"}),
			SuspendedRuns: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: runsSubsystem,
				Name:      "suspended",
				Help:      "Runs currently awaiting a checkpoint decision",
			}),
			ReviewLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: runsSubsystem,
				Name:      "review_latency_seconds",
				Help:      "Time runs spend suspended at the checkpoint",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			}),
		}
	})
	return defaultMetrics
}

// Metrics returns the registered metrics, or nil before InitMetrics.
func Metrics() *RunMetrics {
	return defaultMetrics
}
