// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var geminiTracer = otel.Tracer("aquaflow.llm.gemini")

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// --- Gemini API structures ---

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// --- Client implementation ---

// GeminiClient talks to the Google Generative Language REST API.
//
// Unlike the other backends, a missing API key does not fail client
// construction: the monitor must keep ingesting telemetry with analysis
// disabled. Generate reports ErrServiceUnavailable instead, before any
// network attempt.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewGeminiClient builds a client from GEMINI_API_KEY / GEMINI_MODEL /
// GEMINI_BASE_URL.
func NewGeminiClient() (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		// Secrets-mounted deployments pass the key as a file.
		secretPath := "/run/secrets/gemini_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Gemini API key from secrets mount")
		}
	}
	if apiKey == "" {
		slog.Warn("Gemini API key is missing - trend analysis will be unavailable")
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-1.5-pro"
		slog.Info("GEMINI_MODEL not set, defaulting to", "model", model)
	}

	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &GeminiClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// Available reports whether a credential is configured.
func (g *GeminiClient) Available() bool {
	return g.apiKey != ""
}

func (g *GeminiClient) buildRequest(prompt string, params GenerationParams) geminiRequest {
	cfg := &geminiGenConfig{
		Temperature:     params.Temperature,
		TopP:            params.TopP,
		TopK:            params.TopK,
		MaxOutputTokens: params.MaxTokens,
		StopSequences:   params.Stop,
	}
	if cfg.Temperature == nil {
		defaultTemp := float32(0.7)
		cfg.Temperature = &defaultTemp
	}
	if cfg.TopP == nil {
		defaultTopP := float32(0.95)
		cfg.TopP = &defaultTopP
	}
	if cfg.TopK == nil {
		defaultTopK := 40
		cfg.TopK = &defaultTopK
	}
	if cfg.MaxOutputTokens == nil {
		defaultMaxTokens := 4096
		cfg.MaxOutputTokens = &defaultMaxTokens
	}
	return geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: cfg,
	}
}

// Generate implements the LLMClient interface with a single blocking
// call to generateContent.
func (g *GeminiClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := geminiTracer.Start(ctx, "GeminiClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	if g.apiKey == "" {
		span.SetStatus(codes.Error, ErrServiceUnavailable.Error())
		return "", ErrServiceUnavailable
	}

	generateURL := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	reqBody, err := json.Marshal(g.buildRequest(prompt, params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to marshal request to Gemini: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", generateURL, bytes.NewBuffer(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create request to Gemini: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Gemini API call failed", "error", err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read response body from Gemini: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Gemini returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		var errResp geminiResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Error != nil {
			return "", fmt.Errorf("Gemini failed with status %d: %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("Gemini failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Gemini", "error", err)
		return "", fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	text := geminiCandidateText(geminiResp)
	if text == "" {
		return "", fmt.Errorf("Gemini response contained no candidate text")
	}
	slog.Debug("Received response from Gemini", "chars", len(text))
	return text, nil
}

// GenerateStream implements the LLMClient interface using the
// streamGenerateContent SSE endpoint. Fragments are forwarded as they
// arrive; failures surface as a final in-band fragment, never as an
// error, so consumers terminate cleanly.
func (g *GeminiClient) GenerateStream(ctx context.Context, prompt string,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := geminiTracer.Start(ctx, "GeminiClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	if g.apiKey == "" {
		return callback("Streaming error: " + ErrServiceUnavailable.Error())
	}

	streamURL := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	reqBody, err := json.Marshal(g.buildRequest(prompt, params))
	if err != nil {
		return callback(fmt.Sprintf("Streaming error: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", streamURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return callback(fmt.Sprintf("Streaming error: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		slog.Error("Gemini streaming call failed", "error", err)
		return callback(fmt.Sprintf("Streaming error: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Gemini streaming returned an error", "status_code", resp.StatusCode, "response", string(body))
		return callback(fmt.Sprintf("Streaming error: Gemini failed with status %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("Skipping malformed Gemini stream chunk", "error", err)
			continue
		}
		if text := geminiCandidateText(chunk); text != "" {
			if err := callback(text); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return callback(fmt.Sprintf("Streaming error: %v", err))
	}
	return nil
}

// geminiCandidateText concatenates the text parts of the first candidate.
func geminiCandidateText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}
