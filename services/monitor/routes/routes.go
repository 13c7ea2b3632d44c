// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/handlers"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// Stores bundles the storage dependencies handed to the routes.
type Stores struct {
	Readings *storage.ReadingStore
	Trends   *storage.TrendStore
	Devices  *storage.DeviceStore
	Alerts   *storage.AlertStore
}

// SetupRoutes registers the monitor API on the router.
func SetupRoutes(router *gin.Engine, stores Stores, client llm.LLMClient,
	pipeline *analysis.Pipeline, minReadings, windowSize int) {

	router.Use(handlers.CORS())

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.HealthCheck(client))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		readings := v1.Group("/readings")
		{
			readings.POST("", handlers.IngestReading(stores.Readings, stores.Devices, stores.Alerts, pipeline))
			readings.GET("", handlers.GetHistory(stores.Readings))
			readings.GET("/statistics", handlers.GetStatistics(stores.Readings))
		}

		trends := v1.Group("/trends")
		{
			trends.GET("", handlers.ListTrends(stores.Trends))
			trends.POST("/analyze", handlers.TriggerAnalysis(pipeline))
			trends.GET("/trigger", handlers.GetTriggerState(pipeline))
			trends.GET("/stream", handlers.StreamAnalysis(stores.Readings, client, minReadings, windowSize))
		}

		devices := v1.Group("/devices")
		{
			devices.GET("", handlers.ListDevices(stores.Devices))
			devices.GET("/:deviceId/config", handlers.GetDeviceConfig(stores.Devices))
			devices.PUT("/:deviceId/config", handlers.PutDeviceConfig(stores.Devices))
			devices.GET("/:deviceId/alerts", handlers.ListAlerts(stores.Alerts))
		}

		v1.POST("/alerts", handlers.CreateAlert(stores.Alerts))
		v1.POST("/simulator/readings", handlers.SimulateReadings(stores.Readings, stores.Devices, pipeline))
	}
}
