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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/pkg/validation"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// queryInt reads an integer query parameter, falling back when the
// parameter is absent or malformed.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// queryDeviceID reads and sanitizes an optional device query parameter.
// An empty parameter means "all devices" and returns "".
func queryDeviceID(c *gin.Context) (string, bool) {
	raw := c.Query("device_id")
	if raw == "" {
		return "", true
	}
	id, err := validation.SanitizeDeviceID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

// GetHistory returns stored readings newest first. Supports limit and
// offset paging and an optional device_id filter.
func GetHistory(readings *storage.ReadingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, ok := queryDeviceID(c)
		if !ok {
			return
		}
		limit := queryInt(c, "limit", 100)
		offset := queryInt(c, "offset", 0)

		history, err := readings.History(c.Request.Context(), deviceID, limit, offset)
		if err != nil {
			slog.Error("failed to read telemetry history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read telemetry history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":    len(history),
			"readings": history,
		})
	}
}

// GetStatistics returns the 24-hour aggregate view of all telemetry.
func GetStatistics(readings *storage.ReadingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := readings.Statistics(c.Request.Context())
		if err != nil {
			slog.Error("failed to compute statistics", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
