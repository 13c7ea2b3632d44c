// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the reasoning-service boundary: a common client
// interface over external LLM backends, selected by environment.
package llm

import (
	"context"
	"errors"
)

// ErrServiceUnavailable is returned by Generate when the backend has no
// credential configured. It is checked before any network attempt.
var ErrServiceUnavailable = errors.New("reasoning service unavailable: no API credential configured")

// GenerationParams are the sampling knobs passed through to a backend.
// Nil fields fall back to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamCallback receives one response fragment at a time. Returning an
// error stops the stream.
type StreamCallback func(fragment string) error

// LLMClient defines the standard interface for any LLM backend.
//
// GenerateStream delivers fragments as they arrive from the transport,
// with no buffering or reassembly; callers wanting the full response
// must concatenate. Any failure mid-stream is converted into a single
// final fragment carrying a human-readable error message, so stream
// consumers always terminate cleanly.
//
// Available reports whether the backend is configured well enough to
// attempt a call. It never touches the network.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error
	Available() bool
}

// unavailableClient is the stand-in used when no backend could be
// constructed. Ingestion keeps working; every analysis attempt fails
// fast with ErrServiceUnavailable.
type unavailableClient struct{}

// NewUnavailableClient returns a client that reports the reasoning
// service as unconfigured.
func NewUnavailableClient() LLMClient {
	return unavailableClient{}
}

func (unavailableClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return "", ErrServiceUnavailable
}

func (unavailableClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error {
	return callback("Streaming error: " + ErrServiceUnavailable.Error())
}

func (unavailableClient) Available() bool {
	return false
}
