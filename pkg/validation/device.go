// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// storage keys or log output. Using these validators prevents key-space
// collisions and log injection from crafted device identifiers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// devicePattern matches valid device identifiers.
// Allows: letters, digits, hyphens, underscores, dots.
// Max length: 64 characters.
var devicePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,63}$`)

// ValidateDeviceID validates a device identifier before it is embedded
// in storage keys.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters a-z, A-Z and digits 0-9
//   - Dots (.), underscores (_), and hyphens (-) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateDeviceID(id); err != nil {
//	    return fmt.Errorf("invalid device id: %w", err)
//	}
//	// Safe to use in a storage key
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("device id cannot be empty")
	}

	if !devicePattern.MatchString(id) {
		return fmt.Errorf("invalid device id format: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// SanitizeDeviceID normalizes and validates a device identifier.
// Returns the trimmed, lowercased identifier if valid, or an error.
//
// Use this at API boundaries where identifiers arrive from clients:
//
//	safeID, err := validation.SanitizeDeviceID(userInput)
//	if err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	    return
//	}
func SanitizeDeviceID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateDeviceID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
