// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the trend-analysis pipeline: trigger
// accounting per device, prompt construction over a bounded telemetry
// window, interpretation of the reasoning service's response, and the
// background worker that ties them together.
package analysis

import "sync"

// DefaultThreshold is how many readings accumulate before an analysis
// cycle is considered due.
const DefaultThreshold = 5

// TriggerState is a snapshot of one device's trigger accounting.
type TriggerState struct {
	RecordsSinceLastAnalysis int  `json:"records_since_last_analysis"`
	AnalysisPending          bool `json:"analysis_pending"`
}

// TriggerController decides when accumulated telemetry warrants a new
// analysis cycle. One instance exists per monitored device; all methods
// are safe for concurrent use.
type TriggerController struct {
	mu        sync.Mutex
	threshold int
	records   int
	pending   bool
}

// NewTriggerController returns a controller that trips after threshold
// readings. A non-positive threshold falls back to DefaultThreshold.
func NewTriggerController(threshold int) *TriggerController {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &TriggerController{threshold: threshold}
}

// RecordIngested accounts for one stored reading and returns the
// resulting state. Once the threshold is crossed the pending flag stays
// set until MarkAnalysisComplete.
func (c *TriggerController) RecordIngested() TriggerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records++
	if c.records >= c.threshold {
		c.pending = true
	}
	return TriggerState{RecordsSinceLastAnalysis: c.records, AnalysisPending: c.pending}
}

// NeedsAnalysis reports whether an analysis cycle is due.
func (c *TriggerController) NeedsAnalysis() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// MarkAnalysisComplete unconditionally resets the counter and clears
// the pending flag. Called after every completed cycle, successful or
// not, so a permanently failing reasoning service retries only every
// threshold readings instead of on every ingest.
func (c *TriggerController) MarkAnalysisComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = 0
	c.pending = false
}

// State returns the current trigger state without mutating it.
func (c *TriggerController) State() TriggerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TriggerState{RecordsSinceLastAnalysis: c.records, AnalysisPending: c.pending}
}

// TriggerRegistry hands out one TriggerController per device.
type TriggerRegistry struct {
	mu          sync.Mutex
	threshold   int
	controllers map[string]*TriggerController
}

// NewTriggerRegistry returns a registry creating controllers with the
// given threshold.
func NewTriggerRegistry(threshold int) *TriggerRegistry {
	return &TriggerRegistry{
		threshold:   threshold,
		controllers: make(map[string]*TriggerController),
	}
}

// ForDevice returns the device's controller, creating it on first use.
// Repeated calls with the same ID return the same instance.
func (r *TriggerRegistry) ForDevice(deviceID string) *TriggerController {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.controllers[deviceID]
	if !ok {
		ctrl = NewTriggerController(r.threshold)
		r.controllers[deviceID] = ctrl
	}
	return ctrl
}
