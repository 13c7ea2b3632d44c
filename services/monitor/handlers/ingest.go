// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the monitor API.
//
// Handlers are constructed as closures over their dependencies so routes
// stay declarative and tests can inject fakes.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/pkg/validation"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
	"github.com/AleutianAI/aquaflow/services/monitor/observability"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// DefaultDeviceID is assumed when a sensor posts without a device_id,
// which single-sensor installations do.
const DefaultDeviceID = "default"

// Valve commands returned to sensors on ingestion.
const (
	ValveCommandClose    = "close"
	ValveCommandNoChange = "no_change"
)

// IngestReading stores one telemetry reading and returns immediately.
//
// The response never waits on analysis: the handler only updates trigger
// accounting and, when the threshold has been crossed, enqueues a
// background job. A reading is also checked against the device's alert
// threshold; crossing it raises a critical alert and, when the device
// has valve auto-control enabled, instructs the sensor to close the
// valve.
func IngestReading(readings *storage.ReadingStore, devices *storage.DeviceStore,
	alerts *storage.AlertStore, pipeline *analysis.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingest payload: " + err.Error()})
			return
		}

		value := *req.Value

		rawID := req.DeviceID
		if rawID == "" {
			rawID = DefaultDeviceID
		}
		deviceID, err := validation.SanitizeDeviceID(rawID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		reading, err := readings.Append(ctx, deviceID, value)
		if err != nil {
			slog.Error("failed to store reading", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store reading"})
			return
		}
		observability.RecordReading(deviceID)

		cfg, created, err := devices.EnsureConfig(ctx, deviceID)
		if err != nil {
			slog.Error("failed to load device config", "device", deviceID, "error", err)
			cfg = datatypes.DefaultDeviceConfig(deviceID)
		} else if created {
			slog.Info("Registered new device with default config", "device", deviceID)
		}
		if err := devices.TouchStatus(ctx, deviceID); err != nil {
			slog.Warn("failed to update device status", "device", deviceID, "error", err)
		}

		valveCommand := ValveCommandNoChange
		if value >= cfg.AlertThreshold {
			msg := fmt.Sprintf("Flow value %.2f%% exceeded alert threshold %.2f%%", value, cfg.AlertThreshold)
			if _, err := alerts.Append(ctx, deviceID, msg, datatypes.AlertLevelCritical, ""); err != nil {
				slog.Error("failed to store threshold alert", "device", deviceID, "error", err)
			} else {
				observability.RecordAlert("critical")
			}
			if cfg.ValveAutoControl {
				valveCommand = ValveCommandClose
				slog.Warn("Alert threshold crossed, instructing valve close",
					"device", deviceID, "value", value, "threshold", cfg.AlertThreshold)
			}
		}

		state := pipeline.Triggers().ForDevice(deviceID).RecordIngested()
		if state.AnalysisPending {
			pipeline.Enqueue(deviceID)
		}

		c.JSON(http.StatusOK, datatypes.IngestResponse{
			Message:         "Reading stored",
			Value:           reading.Value,
			RecordID:        reading.ID,
			Timestamp:       reading.Timestamp,
			ValveCommand:    valveCommand,
			ReadingInterval: cfg.ReadingInterval,
		})
	}
}
