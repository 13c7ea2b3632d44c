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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/pkg/validation"
	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
	"github.com/AleutianAI/aquaflow/services/monitor/observability"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

func alertLevelLabel(level int) string {
	switch level {
	case datatypes.AlertLevelCritical:
		return "critical"
	case datatypes.AlertLevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// CreateAlert stores a device-originated alert.
func CreateAlert(alerts *storage.AlertStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert payload: " + err.Error()})
			return
		}
		deviceID, err := validation.SanitizeDeviceID(req.DeviceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := alerts.Append(c.Request.Context(), deviceID, req.Message, req.Level, req.Timestamp)
		if err != nil {
			slog.Error("failed to store alert", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store alert"})
			return
		}
		observability.RecordAlert(alertLevelLabel(req.Level))
		slog.Warn("Device alert received", "device", deviceID, "level", req.Level, "message", req.Message)
		c.JSON(http.StatusCreated, gin.H{"id": id, "status": "stored"})
	}
}

// ListAlerts returns a device's alerts, newest first.
func ListAlerts(alerts *storage.AlertStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := validation.SanitizeDeviceID(c.Param("deviceId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit := queryInt(c, "limit", 50)

		list, err := alerts.ListByDevice(c.Request.Context(), deviceID, limit)
		if err != nil {
			slog.Error("failed to list alerts", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":  len(list),
			"alerts": list,
		})
	}
}
