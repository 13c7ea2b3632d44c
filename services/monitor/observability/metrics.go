// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the monitor.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aquaflow"
	monitorSubsystem = "monitor"
)

// MonitorMetrics holds all Prometheus metrics for the monitor service.
type MonitorMetrics struct {
	// ReadingsIngestedTotal counts stored readings by device.
	ReadingsIngestedTotal *prometheus.CounterVec

	// AnalysisCyclesTotal counts completed analysis cycles by outcome.
	// Outcomes: parsed, fallback, error, insufficient_data.
	AnalysisCyclesTotal *prometheus.CounterVec

	// AnalysisCycleDurationSeconds measures full cycle duration, from
	// window fetch to persisted result.
	AnalysisCycleDurationSeconds prometheus.Histogram

	// AnalysisQueueDepth tracks jobs waiting for the analysis worker.
	AnalysisQueueDepth prometheus.Gauge

	// AnalysisJobsCoalescedTotal counts trigger firings dropped because
	// a job was already queued.
	AnalysisJobsCoalescedTotal prometheus.Counter

	// AlertsCreatedTotal counts alerts by level.
	AlertsCreatedTotal *prometheus.CounterVec
}

// Default is the singleton metrics instance, set by Init. Helper
// functions below no-op while it is nil so library code and tests never
// need a registry.
var Default *MonitorMetrics

// Init creates and registers all monitor metrics. Call once at startup.
func Init() *MonitorMetrics {
	Default = &MonitorMetrics{
		ReadingsIngestedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "readings_ingested_total",
			Help:      "Number of telemetry readings stored, by device.",
		}, []string{"device"}),
		AnalysisCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "analysis_cycles_total",
			Help:      "Number of completed analysis cycles, by outcome.",
		}, []string{"outcome"}),
		AnalysisCycleDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "analysis_cycle_duration_seconds",
			Help:      "Duration of one analysis cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AnalysisQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "analysis_queue_depth",
			Help:      "Jobs currently waiting for the analysis worker.",
		}),
		AnalysisJobsCoalescedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "analysis_jobs_coalesced_total",
			Help:      "Trigger firings dropped because a job was already queued.",
		}),
		AlertsCreatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: monitorSubsystem,
			Name:      "alerts_created_total",
			Help:      "Number of alerts created, by level.",
		}, []string{"level"}),
	}
	return Default
}

// RecordReading increments the ingest counter for a device.
func RecordReading(device string) {
	if Default != nil {
		Default.ReadingsIngestedTotal.WithLabelValues(device).Inc()
	}
}

// RecordCycle increments the cycle counter for an outcome and observes
// its duration.
func RecordCycle(outcome string, seconds float64) {
	if Default != nil {
		Default.AnalysisCyclesTotal.WithLabelValues(outcome).Inc()
		Default.AnalysisCycleDurationSeconds.Observe(seconds)
	}
}

// QueueDepthAdd adjusts the queue depth gauge.
func QueueDepthAdd(delta float64) {
	if Default != nil {
		Default.AnalysisQueueDepth.Add(delta)
	}
}

// RecordCoalesced counts a dropped duplicate analysis job.
func RecordCoalesced() {
	if Default != nil {
		Default.AnalysisJobsCoalescedTotal.Inc()
	}
}

// RecordAlert increments the alert counter for a level.
func RecordAlert(level string) {
	if Default != nil {
		Default.AlertsCreatedTotal.WithLabelValues(level).Inc()
	}
}
