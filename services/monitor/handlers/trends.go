// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// ListTrends returns the most recent stored analysis results, newest
// first.
func ListTrends(trends *storage.TrendStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 5)
		results, err := trends.Latest(c.Request.Context(), limit)
		if err != nil {
			slog.Error("failed to read trend history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read trend history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":  len(results),
			"trends": results,
		})
	}
}

// TriggerAnalysis force-enqueues an analysis cycle for a device,
// bypassing the reading-count trigger. The minimum-data guard still
// applies inside the cycle itself.
func TriggerAnalysis(pipeline *analysis.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, ok := queryDeviceID(c)
		if !ok {
			return
		}
		if deviceID == "" {
			deviceID = DefaultDeviceID
		}
		queued := pipeline.Enqueue(deviceID)
		slog.Info("Manual analysis requested", "device", deviceID, "queued", queued)
		c.JSON(http.StatusAccepted, gin.H{
			"device_id": deviceID,
			"queued":    queued,
			"message":   "analysis scheduled",
		})
	}
}

// GetTriggerState reports a device's trigger accounting, mostly for
// dashboards and debugging.
func GetTriggerState(pipeline *analysis.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, ok := queryDeviceID(c)
		if !ok {
			return
		}
		if deviceID == "" {
			deviceID = DefaultDeviceID
		}
		c.JSON(http.StatusOK, pipeline.Triggers().ForDevice(deviceID).State())
	}
}

// StreamAnalysis runs an ad-hoc analysis over the device's recent
// window and streams the raw reasoning output as Server-Sent Events.
// Nothing is persisted; this endpoint exists for operators watching a
// live incident.
//
// Stream failures after headers are sent arrive in-band as a final
// "Streaming error:" fragment, per the reasoning client contract.
func StreamAnalysis(readings *storage.ReadingStore, client llm.LLMClient,
	minReadings, windowSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, ok := queryDeviceID(c)
		if !ok {
			return
		}
		if deviceID == "" {
			deviceID = DefaultDeviceID
		}

		window, err := readings.RecentWindow(c.Request.Context(), deviceID, windowSize)
		if err != nil {
			slog.Error("failed to read telemetry window", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read telemetry window"})
			return
		}
		if len(window) < minReadings {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("need at least %d readings, have %d", minReadings, len(window)),
			})
			return
		}

		prompt := analysis.BuildPrompt(window, analysis.ComputeStats(window))

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		err = client.GenerateStream(c.Request.Context(), prompt, llm.GenerationParams{},
			func(fragment string) error {
				if _, werr := fmt.Fprintf(c.Writer, "data: %s\n\n", fragment); werr != nil {
					return werr
				}
				c.Writer.Flush()
				return nil
			})
		if err != nil {
			// Headers are already out; all we can do is log and close.
			slog.Error("analysis stream aborted", "device", deviceID, "error", err)
			return
		}
		fmt.Fprint(c.Writer, "data: [DONE]\n\n")
		c.Writer.Flush()
	}
}
