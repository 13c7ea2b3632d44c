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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/pkg/validation"
	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// ListDevices returns the status of every device that has reported.
func ListDevices(devices *storage.DeviceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := devices.ListStatuses(c.Request.Context())
		if err != nil {
			slog.Error("failed to list device statuses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":   len(statuses),
			"devices": statuses,
		})
	}
}

// GetDeviceConfig returns the stored configuration for one device.
func GetDeviceConfig(devices *storage.DeviceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := validation.SanitizeDeviceID(c.Param("deviceId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg, err := devices.GetConfig(c.Request.Context(), deviceID)
		if errors.Is(err, storage.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device: " + deviceID})
			return
		}
		if err != nil {
			slog.Error("failed to load device config", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load device config"})
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// PutDeviceConfig replaces a device's configuration. The device id in
// the path wins; a mismatching id in the body is rejected rather than
// silently corrected.
func PutDeviceConfig(devices *storage.DeviceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := validation.SanitizeDeviceID(c.Param("deviceId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var cfg datatypes.DeviceConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload: " + err.Error()})
			return
		}
		if cfg.DeviceID != "" && cfg.DeviceID != deviceID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "device_id in body does not match path"})
			return
		}
		cfg.DeviceID = deviceID
		if cfg.ReadingInterval <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reading_interval must be positive"})
			return
		}

		if err := devices.PutConfig(c.Request.Context(), cfg); err != nil {
			slog.Error("failed to store device config", "device", deviceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store device config"})
			return
		}
		slog.Info("Device config updated", "device", deviceID,
			"auto_control", cfg.ValveAutoControl,
			"alert_threshold", cfg.AlertThreshold,
			"reading_interval", cfg.ReadingInterval)
		c.JSON(http.StatusOK, cfg)
	}
}
