// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor provides the core water-flow monitoring service.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, embedded storage, the trend-analysis
// pipeline, the reasoning-service client, and observability
// infrastructure.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/aquaflow/services/llm"
	"github.com/AleutianAI/aquaflow/services/monitor/analysis"
	"github.com/AleutianAI/aquaflow/services/monitor/observability"
	"github.com/AleutianAI/aquaflow/services/monitor/routes"
	"github.com/AleutianAI/aquaflow/services/monitor/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the monitor service lifecycle.
//
// Run blocks until the server stops and should only be called once per
// instance. Router exposes the configured engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds monitor configuration options. All fields are optional;
// zero values get defaults applied by New.
type Config struct {
	// Port is the HTTP server port. Default: 12300
	Port int

	// DataPath is the directory for the embedded database.
	// Default: "./data/aquaflow"
	DataPath string

	// InMemory runs storage without touching disk. Used by tests.
	InMemory bool

	// LLMBackend specifies the reasoning provider.
	// Valid values: "gemini", "ollama". Default: "gemini"
	LLMBackend string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, tracing is disabled and spans are no-ops.
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// AnalysisThreshold is how many readings accumulate before an
	// analysis cycle triggers. Default: 5
	AnalysisThreshold int

	// AnalysisWindow is how many recent readings feed one analysis.
	// Default: 50
	AnalysisWindow int

	// AnalysisMinReadings is the minimum stored readings required
	// before a cycle runs. Default: 10
	AnalysisMinReadings int
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12300
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data/aquaflow"
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "gemini"
	}
	cfg.EnableMetrics = true
	if cfg.AnalysisThreshold <= 0 {
		cfg.AnalysisThreshold = analysis.DefaultThreshold
	}
	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = 50
	}
	if cfg.AnalysisMinReadings <= 0 {
		cfg.AnalysisMinReadings = 10
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are
// read-only after New returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *storage.Store
	llmClient     llm.LLMClient
	pipeline      *analysis.Pipeline
	tracerCleanup func(context.Context)
	workerCancel  context.CancelFunc
}

// New creates a monitor Service with the given configuration:
//  1. Applies defaults for missing values
//  2. Initializes tracing when a collector endpoint is configured
//  3. Initializes Prometheus metrics
//  4. Opens the embedded database
//  5. Creates the reasoning client for the configured backend
//  6. Wires the analysis pipeline and HTTP routes
//
// A reasoning backend that cannot be constructed is not fatal: the
// monitor keeps ingesting telemetry with analysis disabled.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	} else {
		slog.Info("OTel endpoint not configured, tracing disabled")
	}

	if s.config.EnableMetrics {
		observability.Init()
		slog.Info("Initialized Prometheus metrics for the monitor")
	}

	if err := s.initStorage(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s.initLLMClient()
	s.initPipeline()
	s.initRouter()

	return s, nil
}

// Run starts the analysis worker and the HTTP server, blocking until
// the server stops. Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	workerCtx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	s.pipeline.Start(workerCtx)

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting monitor server", "port", s.config.Port,
		"backend", s.config.LLMBackend, "data_path", s.config.DataPath)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter. Uses an insecure gRPC
// connection, appropriate for collectors on internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("aquaflow-monitor")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

func (s *service) initStorage() error {
	var (
		store *storage.Store
		err   error
	)
	if s.config.InMemory {
		store, err = storage.OpenInMemory()
	} else {
		store, err = storage.Open(storage.DefaultConfig(s.config.DataPath))
	}
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initLLMClient creates the reasoning client for the configured
// backend. Construction failures downgrade to the unavailable client
// instead of aborting startup; ingestion does not depend on analysis.
func (s *service) initLLMClient() {
	var err error

	switch s.config.LLMBackend {
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama reasoning backend")
	case "gemini":
		s.llmClient, err = llm.NewGeminiClient()
		slog.Info("Using Gemini reasoning backend")
	default:
		slog.Warn("Unknown reasoning backend, defaulting to gemini", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewGeminiClient()
	}

	if err != nil {
		slog.Error("Reasoning backend unavailable, analysis disabled", "error", err)
		s.llmClient = llm.NewUnavailableClient()
	}
}

func (s *service) initPipeline() {
	readings := storage.NewReadingStore(s.store)
	trends := storage.NewTrendStore(s.store)
	s.pipeline = analysis.NewPipeline(readings, trends, s.llmClient, analysis.Config{
		Threshold:   s.config.AnalysisThreshold,
		WindowSize:  s.config.AnalysisWindow,
		MinReadings: s.config.AnalysisMinReadings,
	})
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("aquaflow-monitor"))

	stores := routes.Stores{
		Readings: storage.NewReadingStore(s.store),
		Trends:   storage.NewTrendStore(s.store),
		Devices:  storage.NewDeviceStore(s.store),
		Alerts:   storage.NewAlertStore(s.store),
	}
	routes.SetupRoutes(s.router, stores, s.llmClient, s.pipeline,
		s.config.AnalysisMinReadings, s.config.AnalysisWindow)
}

// cleanup releases resources on Run exit or failed initialization.
func (s *service) cleanup() {
	if s.workerCancel != nil {
		s.workerCancel()
		s.pipeline.Wait()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("storage close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
