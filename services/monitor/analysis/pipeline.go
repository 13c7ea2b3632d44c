// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
	"github.com/AleutianAI/aquaflow/services/monitor/observability"
)

var pipelineTracer = otel.Tracer("aquaflow.monitor.analysis")

// ErrInsufficientData aborts a cycle without resetting trigger state,
// so the cycle retries on the next threshold crossing.
var ErrInsufficientData = errors.New("insufficient telemetry for analysis")

// ReadingWindow is the slice of the telemetry store the pipeline needs.
type ReadingWindow interface {
	RecentWindow(ctx context.Context, deviceID string, limit int) ([]datatypes.Reading, error)
}

// TrendRecorder persists interpreted results.
type TrendRecorder interface {
	Save(ctx context.Context, result datatypes.TrendResult) (string, error)
}

// Config bounds one analysis cycle.
type Config struct {
	// Threshold is the trigger threshold handed to new controllers.
	Threshold int
	// WindowSize caps how many recent readings feed one analysis.
	WindowSize int
	// MinReadings aborts the cycle when fewer readings are stored.
	MinReadings int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 50
	}
	if c.MinReadings <= 0 {
		c.MinReadings = 10
	}
	return c
}

// Pipeline runs analysis cycles off the ingestion path. Jobs are
// enqueued by device onto a single-consumer queue of depth one; bursts
// coalesce instead of blocking the ingestion handler.
type Pipeline struct {
	readings ReadingWindow
	trends   TrendRecorder
	client   llm.LLMClient
	triggers *TriggerRegistry
	cfg      Config

	jobs chan string
	done chan struct{}
}

// NewPipeline wires the analysis pipeline. The trigger registry is
// owned by the pipeline and shared with the ingestion handler via
// Triggers.
func NewPipeline(readings ReadingWindow, trends TrendRecorder, client llm.LLMClient, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		readings: readings,
		trends:   trends,
		client:   client,
		triggers: NewTriggerRegistry(cfg.Threshold),
		cfg:      cfg,
		jobs:     make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Triggers exposes the per-device trigger registry.
func (p *Pipeline) Triggers() *TriggerRegistry {
	return p.triggers
}

// Start launches the single analysis worker. The worker exits when ctx
// is cancelled; Wait blocks until it has drained.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case deviceID := <-p.jobs:
				observability.QueueDepthAdd(-1)
				if err := p.RunCycle(ctx, deviceID); err != nil {
					slog.Warn("Analysis cycle did not complete", "device", deviceID, "error", err)
				}
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (p *Pipeline) Wait() {
	<-p.done
}

// Enqueue schedules an analysis cycle for a device without blocking.
// Returns false when a job is already queued; the burst is coalesced
// because the queued cycle will see the newer readings anyway.
func (p *Pipeline) Enqueue(deviceID string) bool {
	select {
	case p.jobs <- deviceID:
		observability.QueueDepthAdd(1)
		return true
	default:
		observability.RecordCoalesced()
		slog.Debug("Analysis already queued, coalescing", "device", deviceID)
		return false
	}
}

// generationParams are the sampling settings tuned for flow analysis.
func generationParams() llm.GenerationParams {
	temp := float32(0.7)
	topP := float32(0.95)
	topK := 40
	maxTokens := 4096
	return llm.GenerationParams{
		Temperature: &temp,
		TopP:        &topP,
		TopK:        &topK,
		MaxTokens:   &maxTokens,
	}
}

// RunCycle executes one full analysis cycle for a device: fetch the
// recent window, build the prompt, call the reasoning service,
// interpret, persist, and reset the device's trigger state.
//
// Failure handling follows the best-effort contract: a reasoning or
// storage failure still resets the trigger (the result records the
// error); only ErrInsufficientData leaves the trigger primed to retry.
func (p *Pipeline) RunCycle(ctx context.Context, deviceID string) error {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.RunCycle")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", deviceID))
	started := time.Now()

	window, err := p.readings.RecentWindow(ctx, deviceID, p.cfg.WindowSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordCycle("error", time.Since(started).Seconds())
		return fmt.Errorf("fetch reading window: %w", err)
	}
	if len(window) < p.cfg.MinReadings {
		slog.Warn("Not enough telemetry to analyze, leaving trigger primed",
			"device", deviceID, "have", len(window), "need", p.cfg.MinReadings)
		observability.RecordCycle("insufficient_data", time.Since(started).Seconds())
		return ErrInsufficientData
	}

	stats := ComputeStats(window)
	prompt := BuildPrompt(window, stats)

	var (
		result  datatypes.TrendResult
		outcome string
	)
	raw, err := p.client.Generate(ctx, prompt, generationParams())
	if err != nil {
		span.RecordError(err)
		slog.Error("Reasoning service call failed", "device", deviceID, "error", err)
		result = datatypes.TrendResult{
			Trend:           TrendError,
			LeakProbability: 0,
			Recommendation:  fmt.Sprintf("Analysis failed: %v", err),
			Details:         map[string]any{"error": err.Error()},
		}
		outcome = "error"
	} else {
		var tag Outcome
		result, tag = Interpret(raw)
		if tag == OutcomeFallback {
			slog.Warn("Reasoning response was not interpretable, stored fallback result", "device", deviceID)
			outcome = "fallback"
		} else {
			outcome = "parsed"
		}
	}

	result.Period = fmt.Sprintf("last %d records", len(window))

	recordID, saveErr := p.trends.Save(ctx, result)
	// The trigger resets whether or not the cycle succeeded; see
	// MarkAnalysisComplete.
	p.triggers.ForDevice(deviceID).MarkAnalysisComplete()
	observability.RecordCycle(outcome, time.Since(started).Seconds())

	if saveErr != nil {
		span.RecordError(saveErr)
		span.SetStatus(codes.Error, saveErr.Error())
		return fmt.Errorf("save trend result: %w", saveErr)
	}

	slog.Info("Analysis cycle completed",
		"device", deviceID,
		"record_id", recordID,
		"trend", result.Trend,
		"leak_probability", result.LeakProbability,
		"outcome", outcome,
		"duration", time.Since(started))
	return nil
}
