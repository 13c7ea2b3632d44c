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
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/observability"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// Simulated readings span the plausible operating range without
// guaranteeing a threshold crossing.
const (
	simulatedMin = 10.0
	simulatedMax = 95.0
)

// SimulateReadings stores one random reading per configured device,
// exercising the same trigger accounting as real ingestion. Intended
// for demos and smoke tests against an empty installation.
func SimulateReadings(readings *storage.ReadingStore, devices *storage.DeviceStore,
	pipeline *analysis.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		ids, err := devices.ListConfiguredDevices(ctx)
		if err != nil {
			slog.Error("failed to list configured devices", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list configured devices"})
			return
		}
		if len(ids) == 0 {
			ids = []string{DefaultDeviceID}
		}

		stored := make([]gin.H, 0, len(ids))
		for _, deviceID := range ids {
			value := simulatedMin + rand.Float64()*(simulatedMax-simulatedMin)
			reading, err := readings.Append(ctx, deviceID, value)
			if err != nil {
				slog.Error("failed to store simulated reading", "device", deviceID, "error", err)
				continue
			}
			observability.RecordReading(deviceID)
			if err := devices.TouchStatus(ctx, deviceID); err != nil {
				slog.Warn("failed to update device status", "device", deviceID, "error", err)
			}
			state := pipeline.Triggers().ForDevice(deviceID).RecordIngested()
			if state.AnalysisPending {
				pipeline.Enqueue(deviceID)
			}
			stored = append(stored, gin.H{
				"device_id": deviceID,
				"record_id": reading.ID,
				"value":     reading.Value,
			})
		}

		slog.Info("Simulated readings stored", "count", len(stored))
		c.JSON(http.StatusOK, gin.H{
			"count":    len(stored),
			"readings": stored,
		})
	}
}
