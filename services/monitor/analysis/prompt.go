// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
)

// maxListedReadings caps the raw listing embedded in the prompt,
// independently of the window the statistics are computed over, to
// bound prompt size.
const maxListedReadings = 10

// WindowStats are the summary statistics embedded in the prompt.
type WindowStats struct {
	Mean  float64
	Max   float64
	Min   float64
	Count int
}

// ComputeStats derives summary statistics from a reading window.
func ComputeStats(readings []datatypes.Reading) WindowStats {
	stats := WindowStats{Count: len(readings)}
	if len(readings) == 0 {
		return stats
	}
	stats.Max = readings[0].Value
	stats.Min = readings[0].Value
	var sum float64
	for _, r := range readings {
		sum += r.Value
		if r.Value > stats.Max {
			stats.Max = r.Value
		}
		if r.Value < stats.Min {
			stats.Min = r.Value
		}
	}
	stats.Mean = sum / float64(len(readings))
	return stats
}

// BuildPrompt formats a bounded window of readings (newest first) and
// its summary statistics into the analysis request.
//
// The JSON shape named in the prompt is a wire contract: the response
// interpreter reads exactly these keys. Changing one side requires
// changing the other in lockstep.
func BuildPrompt(readings []datatypes.Reading, stats WindowStats) string {
	listed := readings
	if len(listed) > maxListedReadings {
		listed = listed[:maxListedReadings]
	}
	var listing strings.Builder
	for _, r := range listed {
		fmt.Fprintf(&listing, "ID: %s, Value: %.2f%%, Timestamp: %s\n", r.ID, r.Value, r.Timestamp)
	}

	return fmt.Sprintf(`# Water Flow Data Analysis

Analyze the following water flow telemetry and provide a detailed assessment.

## Summary Statistics
- Mean: %.2f%%
- Max: %.2f%%
- Min: %.2f%%
- Total readings: %d

## Most Recent Readings
`+"```"+`
%s`+"```"+`

## Instructions
Perform a complete analysis following these steps:

1. Identify patterns in the flow data (stable, increasing, decreasing, fluctuating)
2. Detect anomalies that could indicate leaks or faults
3. Estimate the probability of a leak based on the patterns
4. Provide specific recommendations

## Response Format
Your response MUST be a JSON object with exactly this structure:

{
    "trend": "stable|increasing|decreasing|fluctuating",
    "leak_probability": numeric_value_between_0_and_100,
    "recommendation": "text with the recommended action",
    "details": {
        "identified_patterns": ["list", "of", "patterns"],
        "anomalies": ["list", "of", "anomalies"],
        "explanation": "explanation of the analysis"
    }
}
`, stats.Mean, stats.Max, stats.Min, stats.Count, listing.String())
}
