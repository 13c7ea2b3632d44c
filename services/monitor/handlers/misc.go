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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/services/llm"
)

// HealthCheck reports liveness plus whether the reasoning service is
// configured. Analysis being unavailable is not an unhealthy state:
// ingestion keeps working without it.
func HealthCheck(client llm.LLMClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"analysis_available": client.Available(),
		})
	}
}

// Root lists the API surface for anyone poking the service by hand.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "aquaflow-monitor",
		"endpoints": gin.H{
			"ingest":     "POST /v1/readings",
			"history":    "GET /v1/readings",
			"statistics": "GET /v1/readings/statistics",
			"trends":     "GET /v1/trends",
			"analyze":    "POST /v1/trends/analyze",
			"stream":     "GET /v1/trends/stream",
			"devices":    "GET /v1/devices",
			"config":     "GET|PUT /v1/devices/:deviceId/config",
			"alerts":     "POST /v1/alerts, GET /v1/devices/:deviceId/alerts",
			"simulate":   "POST /v1/simulator/readings",
			"health":     "GET /health",
			"metrics":    "GET /metrics",
		},
	})
}

// CORS allows browser dashboards served from any origin to call the
// API. The monitor runs on trusted networks; there is no cookie-based
// auth to protect.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
