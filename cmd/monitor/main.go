// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command monitor starts the aquaflow water-flow monitoring HTTP server.
//
// This is the main entry point for the containerized monitor service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MONITOR_PORT: HTTP server port (default: 12300)
//   - MONITOR_DATA_PATH: embedded database directory (default: ./data/aquaflow)
//   - LLM_BACKEND_TYPE: reasoning provider - gemini, ollama (default: gemini)
//   - GEMINI_API_KEY / OLLAMA_BASE_URL: provider credentials
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - ANALYSIS_THRESHOLD: readings per analysis trigger (default: 5)
//   - ANALYSIS_WINDOW: readings per analysis window (default: 50)
//   - ANALYSIS_MIN_READINGS: minimum readings before analysis (default: 10)
//
// # Usage
//
//	# Build
//	go build -o monitor ./cmd/monitor
//
//	# Run
//	./monitor
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/aquaflow/services/monitor"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := monitor.Config{
		Port:                getEnvInt("MONITOR_PORT", 12300),
		DataPath:            getEnvString("MONITOR_DATA_PATH", "./data/aquaflow"),
		LLMBackend:          getEnvString("LLM_BACKEND_TYPE", "gemini"),
		OTelEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AnalysisThreshold:   getEnvInt("ANALYSIS_THRESHOLD", 5),
		AnalysisWindow:      getEnvInt("ANALYSIS_WINDOW", 50),
		AnalysisMinReadings: getEnvInt("ANALYSIS_MIN_READINGS", 10),
	}

	slog.Info("Starting monitor",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"data_path", cfg.DataPath,
	)

	svc, err := monitor.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create monitor: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Monitor error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
