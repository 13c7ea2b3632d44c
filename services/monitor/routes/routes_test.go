// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockLLMClient struct{}

func (m *mockLLMClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return `{"trend":"stable"}`, nil
}

func (m *mockLLMClient) GenerateStream(_ context.Context, _ string, _ llm.GenerationParams, callback llm.StreamCallback) error {
	return callback("mock stream")
}

func (m *mockLLMClient) Available() bool { return true }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stores := Stores{
		Readings: storage.NewReadingStore(store),
		Trends:   storage.NewTrendStore(store),
		Devices:  storage.NewDeviceStore(store),
		Alerts:   storage.NewAlertStore(store),
	}
	client := &mockLLMClient{}
	pipeline := analysis.NewPipeline(stores.Readings, stores.Trends, client, analysis.Config{})

	router := gin.New()
	SetupRoutes(router, stores, client, pipeline, 10, 50)
	return router
}

func TestSetupRoutes_RegistersAPISurface(t *testing.T) {
	router := newTestRouter(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/"},
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/readings"},
		{"GET", "/v1/readings"},
		{"GET", "/v1/readings/statistics"},
		{"GET", "/v1/trends"},
		{"POST", "/v1/trends/analyze"},
		{"GET", "/v1/trends/trigger"},
		{"GET", "/v1/trends/stream"},
		{"GET", "/v1/devices"},
		{"GET", "/v1/devices/:deviceId/config"},
		{"PUT", "/v1/devices/:deviceId/config"},
		{"GET", "/v1/devices/:deviceId/alerts"},
		{"POST", "/v1/alerts"},
		{"POST", "/v1/simulator/readings"},
	}

	registered := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range registered {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestSetupRoutes_IngestSmokeTest(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/v1/readings", strings.NewReader(`{"value": 55.5}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Contains(t, w.Body.String(), "record_id")

	req = httptest.NewRequest("GET", "/v1/readings", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestSetupRoutes_CORSHeadersApplied(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
