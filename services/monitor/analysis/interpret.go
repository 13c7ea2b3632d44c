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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
)

// Trend values produced by the interpreter.
const (
	TrendStable      = "stable"
	TrendIncreasing  = "increasing"
	TrendDecreasing  = "decreasing"
	TrendFluctuating = "fluctuating"

	// TrendUnknown is the canonical sentinel for a parsed response whose
	// trend key is missing or not a string.
	TrendUnknown = "unknown"

	// TrendError marks a cycle where the reasoning service itself failed.
	TrendError = "error"

	// TrendIncomplete marks a response that could not be parsed at all.
	// The Spanish wire value is kept for compatibility with dashboards
	// deployed against the first field installation.
	TrendIncomplete = "análisis incompleto"
)

const (
	defaultRecommendation  = "No recommendations available"
	fallbackRecommendation = "Manual review of the telemetry data is recommended"

	// rawResponseLimit bounds how much of an uninterpretable response is
	// preserved in the fallback details.
	rawResponseLimit = 500
)

// Outcome tags how a response was interpreted.
type Outcome int

const (
	// OutcomeParsed means a JSON object was extracted and decoded.
	OutcomeParsed Outcome = iota
	// OutcomeFallback means the text was not interpretable and a safe
	// fallback result was produced.
	OutcomeFallback
)

// Interpret extracts a validated TrendResult from raw reasoning-service
// output. The input is untrusted free text: it may wrap the JSON object
// in prose, or contain no JSON at all. Interpret never fails; every
// input maps to some valid result, degraded outcomes are tagged
// OutcomeFallback.
func Interpret(raw string) (datatypes.TrendResult, Outcome) {
	text := strings.TrimSpace(raw)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fallbackResult(raw), OutcomeFallback
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return fallbackResult(raw), OutcomeFallback
	}

	return datatypes.TrendResult{
		Trend:           coerceTrend(fields["trend"]),
		LeakProbability: coerceProbability(fields["leak_probability"]),
		Recommendation:  coerceRecommendation(fields["recommendation"]),
		Details:         coerceDetails(fields["details"]),
	}, OutcomeParsed
}

// fallbackResult builds the safe result for uninterpretable text,
// preserving a bounded slice of the original response for manual review.
func fallbackResult(raw string) datatypes.TrendResult {
	preserved := raw
	if runes := []rune(preserved); len(runes) > rawResponseLimit {
		preserved = string(runes[:rawResponseLimit])
	}
	return datatypes.TrendResult{
		Trend:           TrendIncomplete,
		LeakProbability: 0,
		Recommendation:  fallbackRecommendation,
		Details:         map[string]any{"raw_response": preserved + "..."},
	}
}

// coerceTrend defaults a missing or wrong-typed trend to TrendUnknown.
func coerceTrend(v any) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return TrendUnknown
	}
	return s
}

// coerceProbability accepts a JSON number or a numeric string and
// clamps the result to [0, 100]. Anything else defaults to 0.
func coerceProbability(v any) float64 {
	var p float64
	switch val := v.(type) {
	case float64:
		p = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		p = parsed
	default:
		return 0
	}
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// coerceRecommendation defaults a missing or wrong-typed recommendation.
func coerceRecommendation(v any) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return defaultRecommendation
	}
	return s
}

// coerceDetails defaults missing or wrong-typed details to an empty map.
func coerceDetails(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return map[string]any{}
	}
	return m
}
