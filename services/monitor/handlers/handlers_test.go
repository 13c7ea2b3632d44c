// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLLM struct {
	response  string
	available bool
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.response, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, params llm.GenerationParams, callback llm.StreamCallback) error {
	return callback(f.response)
}

func (f *fakeLLM) Available() bool { return f.available }

// testEnv wires real in-memory stores behind a gin router the way
// routes.SetupRoutes does, minus the middleware.
type testEnv struct {
	router   *gin.Engine
	readings *storage.ReadingStore
	trends   *storage.TrendStore
	devices  *storage.DeviceStore
	alerts   *storage.AlertStore
	pipeline *analysis.Pipeline
	client   *fakeLLM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		readings: storage.NewReadingStore(store),
		trends:   storage.NewTrendStore(store),
		devices:  storage.NewDeviceStore(store),
		alerts:   storage.NewAlertStore(store),
		client:   &fakeLLM{response: `{"trend":"stable"}`, available: true},
	}
	env.pipeline = analysis.NewPipeline(env.readings, env.trends, env.client,
		analysis.Config{Threshold: 5, WindowSize: 50, MinReadings: 10})

	r := gin.New()
	r.Use(CORS())
	r.GET("/health", HealthCheck(env.client))
	r.POST("/v1/readings", IngestReading(env.readings, env.devices, env.alerts, env.pipeline))
	r.GET("/v1/readings", GetHistory(env.readings))
	r.GET("/v1/readings/statistics", GetStatistics(env.readings))
	r.GET("/v1/trends", ListTrends(env.trends))
	r.POST("/v1/trends/analyze", TriggerAnalysis(env.pipeline))
	r.GET("/v1/trends/trigger", GetTriggerState(env.pipeline))
	r.GET("/v1/devices", ListDevices(env.devices))
	r.GET("/v1/devices/:deviceId/config", GetDeviceConfig(env.devices))
	r.PUT("/v1/devices/:deviceId/config", PutDeviceConfig(env.devices))
	r.GET("/v1/devices/:deviceId/alerts", ListAlerts(env.alerts))
	r.POST("/v1/alerts", CreateAlert(env.alerts))
	r.POST("/v1/simulator/readings", SimulateReadings(env.readings, env.devices, env.pipeline))
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

// --- ingestion ---

func TestIngestReading_StoresAndAcknowledges(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/v1/readings", `{"value": 42.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["record_id"] == "" || body["record_id"] == nil {
		t.Error("response must carry the record id")
	}
	if body["valve_command"] != ValveCommandNoChange {
		t.Errorf("valve_command = %v, want no_change", body["valve_command"])
	}
	if body["reading_interval"] != float64(30) {
		t.Errorf("reading_interval = %v, want default 30", body["reading_interval"])
	}

	// Omitted device id lands on the default device.
	history, err := env.readings.History(context.Background(), DefaultDeviceID, 10, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, err = %v", history, err)
	}
	if history[0].Value != 42.5 {
		t.Errorf("stored value = %v", history[0].Value)
	}
}

func TestIngestReading_AcceptsZeroFlow(t *testing.T) {
	env := newTestEnv(t)

	// A stopped flow is a legitimate reading, not a missing field.
	w := env.do(t, "POST", "/v1/readings", `{"value": 0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["value"] != float64(0) {
		t.Errorf("value = %v, want 0", body["value"])
	}

	history, err := env.readings.History(context.Background(), DefaultDeviceID, 10, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, err = %v", history, err)
	}
	if history[0].Value != 0 {
		t.Errorf("stored value = %v, want 0", history[0].Value)
	}
}

func TestIngestReading_RejectsBadPayloads(t *testing.T) {
	env := newTestEnv(t)

	for name, body := range map[string]string{
		"missing value": `{"device_id":"sensor-1"}`,
		"not json":      `value=42`,
		"bad device id": `{"value":10,"device_id":"../etc"}`,
		"value not num": `{"value":"high"}`,
	} {
		w := env.do(t, "POST", "/v1/readings", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestIngestReading_ThresholdCrossingClosesValve(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/v1/readings", `{"value": 92.0, "device_id": "sensor-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["valve_command"] != ValveCommandClose {
		t.Errorf("valve_command = %v, want close above default threshold 80", body["valve_command"])
	}

	alerts, err := env.alerts.ListByDevice(context.Background(), "sensor-1", 10)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("alerts = %v, err = %v", alerts, err)
	}
	if alerts[0].Level != datatypes.AlertLevelCritical {
		t.Errorf("alert level = %d, want critical", alerts[0].Level)
	}
}

func TestIngestReading_NoValveCloseWhenAutoControlOff(t *testing.T) {
	env := newTestEnv(t)

	cfg := datatypes.DefaultDeviceConfig("sensor-1")
	cfg.ValveAutoControl = false
	if err := env.devices.PutConfig(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, "POST", "/v1/readings", `{"value": 92.0, "device_id": "sensor-1"}`)
	body := decodeBody(t, w)
	if body["valve_command"] != ValveCommandNoChange {
		t.Errorf("valve_command = %v, want no_change with auto-control off", body["valve_command"])
	}
	// The alert is still raised; only the valve action is suppressed.
	alerts, _ := env.alerts.ListByDevice(context.Background(), "sensor-1", 10)
	if len(alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerts))
	}
}

func TestIngestReading_ThresholdTripsEnqueuesAnalysis(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		w := env.do(t, "POST", "/v1/readings", `{"value": 40.0}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}
	// The worker is not running, so the enqueued job still occupies the
	// single queue slot.
	if env.pipeline.Enqueue("sensor-2") {
		t.Error("queue should already hold the triggered analysis job")
	}
}

// --- history and statistics ---

func TestGetHistory_LimitAndDeviceFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.readings.Append(ctx, "sensor-a", float64(i))
	}
	env.readings.Append(ctx, "sensor-b", 99)

	w := env.do(t, "GET", "/v1/readings?device_id=sensor-a&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestGetStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.readings.Append(ctx, "default", 10)
	env.readings.Append(ctx, "default", 30)

	w := env.do(t, "GET", "/v1/readings/statistics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["total_count"] != float64(2) {
		t.Errorf("total_count = %v, want 2", body["total_count"])
	}
	if body["average_24h"] != float64(20) {
		t.Errorf("average_24h = %v, want 20", body["average_24h"])
	}
}

// --- trends ---

func TestListTrends(t *testing.T) {
	env := newTestEnv(t)
	env.trends.Save(context.Background(), datatypes.TrendResult{
		Trend: "stable", Recommendation: "No action needed",
	})

	w := env.do(t, "GET", "/v1/trends", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestTriggerAnalysis_Accepted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/v1/trends/analyze?device_id=sensor-1", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	body := decodeBody(t, w)
	if body["queued"] != true {
		t.Errorf("queued = %v, want true", body["queued"])
	}
	// Second request coalesces but is still accepted.
	w = env.do(t, "POST", "/v1/trends/analyze?device_id=sensor-1", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if decodeBody(t, w)["queued"] != false {
		t.Error("second request should report queued=false")
	}
}

func TestGetTriggerState(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/v1/readings", `{"value": 10, "device_id": "sensor-1"}`)

	w := env.do(t, "GET", "/v1/trends/trigger?device_id=sensor-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["records_since_last_analysis"] != float64(1) {
		t.Errorf("records = %v, want 1", body["records_since_last_analysis"])
	}
}

// --- devices ---

func TestDeviceConfig_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/v1/devices/sensor-1/config", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d, want 404", w.Code)
	}

	w = env.do(t, "PUT", "/v1/devices/sensor-1/config",
		`{"valve_auto_control": false, "alert_threshold": 70, "reading_interval": 60}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/v1/devices/sensor-1/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["alert_threshold"] != float64(70) || body["valve_auto_control"] != false {
		t.Errorf("config = %v", body)
	}
}

func TestPutDeviceConfig_RejectsMismatchedBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/v1/devices/sensor-1/config",
		`{"device_id": "sensor-2", "reading_interval": 60}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListDevices_AfterIngest(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/v1/readings", `{"value": 10, "device_id": "sensor-1"}`)

	w := env.do(t, "GET", "/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeBody(t, w)["count"] != float64(1) {
		t.Error("ingest should register the device status")
	}
}

// --- alerts ---

func TestCreateAlert_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/v1/alerts",
		`{"device_id": "sensor-1", "message": "pressure drop", "level": 2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// Level outside 1..3 is rejected by binding.
	w = env.do(t, "POST", "/v1/alerts",
		`{"device_id": "sensor-1", "message": "bad", "level": 5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid level", w.Code)
	}

	w = env.do(t, "GET", "/v1/devices/sensor-1/alerts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeBody(t, w)["count"] != float64(1) {
		t.Error("only the valid alert should be stored")
	}
}

// --- simulator, health, CORS ---

func TestSimulateReadings_UsesConfiguredDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.devices.PutConfig(ctx, datatypes.DefaultDeviceConfig("sensor-a"))
	env.devices.PutConfig(ctx, datatypes.DefaultDeviceConfig("sensor-b"))

	w := env.do(t, "POST", "/v1/simulator/readings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeBody(t, w)["count"] != float64(2) {
		t.Error("one reading per configured device")
	}

	history, _ := env.readings.History(ctx, "sensor-a", 10, 0)
	if len(history) != 1 {
		t.Fatalf("history = %d readings, want 1", len(history))
	}
	if v := history[0].Value; v < 10 || v > 95 {
		t.Errorf("simulated value %v outside [10, 95]", v)
	}
}

func TestHealthCheck_ReportsAnalysisAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.client.available = false

	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["analysis_available"] != false {
		t.Errorf("analysis_available = %v, want false", body["analysis_available"])
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/readings", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}
