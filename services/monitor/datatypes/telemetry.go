// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared wire and storage types for the
// water-flow monitor: sensor readings, trend analyses, device config
// and status, and the API request/response shapes.
package datatypes

// Reading is a single timestamped flow/level measurement.
// Readings are immutable once written.
type Reading struct {
	ID        string  `json:"id"`
	DeviceID  string  `json:"device_id"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"` // RFC 3339
	Analysis  string  `json:"analysis,omitempty"`
}

// TrendResult is one interpreted analysis produced from a window of
// recent readings. Created exclusively by the response interpreter and
// immutable once persisted.
type TrendResult struct {
	ID              string         `json:"id,omitempty"`
	Trend           string         `json:"trend"`
	LeakProbability float64        `json:"leak_probability"`
	Recommendation  string         `json:"recommendation"`
	Details         map[string]any `json:"details"`
	Period          string         `json:"period"`
	CreatedAt       string         `json:"created_at"`
}

// DeviceConfig is the per-device configuration a field sensor polls for.
type DeviceConfig struct {
	DeviceID         string  `json:"device_id"`
	ValveAutoControl bool    `json:"valve_auto_control"`
	AlertThreshold   float64 `json:"alert_threshold"`
	ReadingInterval  int     `json:"reading_interval"` // seconds
}

// DefaultDeviceConfig returns the configuration assigned to a device on
// its first reading, before an operator has configured it.
func DefaultDeviceConfig(deviceID string) DeviceConfig {
	return DeviceConfig{
		DeviceID:         deviceID,
		ValveAutoControl: true,
		AlertThreshold:   80.0,
		ReadingInterval:  30,
	}
}

// DeviceStatus tracks liveness of a field sensor.
type DeviceStatus struct {
	DeviceID        string   `json:"device_id"`
	Online          bool     `json:"online"`
	LastSeen        string   `json:"last_seen"`
	Battery         *float64 `json:"battery,omitempty"`
	FirmwareVersion string   `json:"firmware_version,omitempty"`
}

// Alert levels.
const (
	AlertLevelInfo     = 1
	AlertLevelWarning  = 2
	AlertLevelCritical = 3
)

// Alert is a device or server originated alert record.
type Alert struct {
	ID        string `json:"id"`
	DeviceID  string `json:"device_id"`
	Message   string `json:"message"`
	Level     int    `json:"level"`
	Timestamp string `json:"timestamp"`
}

// --- API request/response shapes ---

// IngestRequest is the ingestion payload posted by a sensor.
// DeviceID is optional; single-sensor installations omit it.
// Value is a pointer so a zero-flow reading is distinguishable from a
// missing field.
type IngestRequest struct {
	Value    *float64 `json:"value" binding:"required"`
	DeviceID string   `json:"device_id"`
}

// IngestResponse acknowledges a stored reading and carries device
// instructions back to the sensor.
type IngestResponse struct {
	Message         string  `json:"message"`
	Value           float64 `json:"value"`
	RecordID        string  `json:"record_id"`
	Timestamp       string  `json:"timestamp"`
	ValveCommand    string  `json:"valve_command"`
	ReadingInterval int     `json:"reading_interval"`
}

// HourlyBreakdown is one row of the per-hour statistics aggregation.
type HourlyBreakdown struct {
	Hour     string  `json:"hour"` // "00".."23"
	AvgValue float64 `json:"avg_value"`
	Count    int     `json:"count"`
}

// StatisticsResponse summarizes the last 24 hours of telemetry.
type StatisticsResponse struct {
	Average24h float64           `json:"average_24h"`
	Max24h     float64           `json:"max_24h"`
	Min24h     float64           `json:"min_24h"`
	Efficiency float64           `json:"efficiency"`
	PerHour    []HourlyBreakdown `json:"per_hour_breakdown"`
	TotalCount int               `json:"total_count"`
	ComputedAt string            `json:"computed_at"`
}

// AlertRequest is the payload for device-originated alerts.
type AlertRequest struct {
	DeviceID  string `json:"device_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Level     int    `json:"level" binding:"required,min=1,max=3"`
	Timestamp string `json:"timestamp"`
}
