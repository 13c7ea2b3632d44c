// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestOllamaClient creates an OllamaClient pointing at a test server,
// bypassing environment configuration.
func newTestOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

func TestOllamaGenerate_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","response":"{\"trend\":\"stable\"}","done":true}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	got, err := client.Generate(context.Background(), "analyze this", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != `{"trend":"stable"}` {
		t.Errorf("Generate = %q, want raw response text", got)
	}
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'missing' not found"}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, "missing")
	_, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("error should suggest pulling the model, got: %v", err)
	}
}

func TestOllamaGenerateStream_DeliversFragments(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"response":"The trend ","done":false}` + "\n"))
		w.Write([]byte(`{"response":"is stable.","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	var fragments []string
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{},
		func(fragment string) error {
			fragments = append(fragments, fragment)
			return nil
		})
	if err != nil {
		t.Fatalf("GenerateStream returned error: %v", err)
	}
	if got := strings.Join(fragments, ""); got != "The trend is stable." {
		t.Errorf("assembled stream = %q", got)
	}
}

func TestOllamaGenerateStream_ErrorArrivesInBand(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	var fragments []string
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{},
		func(fragment string) error {
			fragments = append(fragments, fragment)
			return nil
		})
	if err != nil {
		t.Fatalf("stream errors must arrive in-band, got transport error: %v", err)
	}
	if len(fragments) != 1 || !strings.HasPrefix(fragments[0], "Streaming error:") {
		t.Errorf("expected a single in-band error fragment, got %v", fragments)
	}
}

func TestOllamaGenerateStream_SkipsMalformedChunks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"ok","done":false}` + "\n"))
		w.Write([]byte("not json at all\n"))
		w.Write([]byte(`{"response":" fine","done":true}` + "\n"))
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	var got strings.Builder
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{},
		func(fragment string) error {
			got.WriteString(fragment)
			return nil
		})
	if err != nil {
		t.Fatalf("GenerateStream returned error: %v", err)
	}
	if got.String() != "ok fine" {
		t.Errorf("stream should skip malformed chunks, got %q", got.String())
	}
}

func TestOllamaBuildOptions_Defaults(t *testing.T) {
	t.Parallel()

	client := newTestOllamaClient("http://localhost", "m")
	options := client.buildOptions(GenerationParams{})
	if options["temperature"] != float32(0.7) {
		t.Errorf("default temperature = %v, want 0.7", options["temperature"])
	}
	if options["top_k"] != 40 {
		t.Errorf("default top_k = %v, want 40", options["top_k"])
	}
	if options["num_predict"] != 4096 {
		t.Errorf("default num_predict = %v, want 4096", options["num_predict"])
	}
}
