// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator provides the core question-answering service for
// BiegeAI.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the LLM backend, the conversation store, the
// knowledge retriever, the tool loop, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 8000, LLMBackend: "gemini"}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/abie0416/BiegeAI/services/llm"
	"github.com/abie0416/BiegeAI/services/orchestrator/agent"
	"github.com/abie0416/BiegeAI/services/orchestrator/conversation"
	"github.com/abie0416/BiegeAI/services/orchestrator/datatypes"
	"github.com/abie0416/BiegeAI/services/orchestrator/middleware"
	"github.com/abie0416/BiegeAI/services/orchestrator/observability"
	"github.com/abie0416/BiegeAI/services/orchestrator/retrieval"
	"github.com/abie0416/BiegeAI/services/orchestrator/routes"
	"github.com/abie0416/BiegeAI/services/orchestrator/services"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the orchestrator service.
// Values can be populated from environment variables or programmatically
// for testing. All fields are optional with defaults applied by New(),
// except that the chosen LLM backend must have its environment configured
// or New() fails.
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "gemini", "openai", "ollama"
	// Default: "gemini"
	LLMBackend string

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, knowledge retrieval is disabled.
	WeaviateURL string

	// EmbeddingURL is the external embedding service URL. Required for
	// retrieval and document ingestion when Weaviate is configured.
	EmbeddingURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "biegeai-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// Conversation tunes the in-memory session store. Zero values use
	// the store defaults.
	Conversation conversation.Config

	// Query tunes retrieval inside the answer pipeline.
	Query services.QueryConfig

	// MaxToolCalls is the ceiling of executed tool calls per question.
	// Default: 5
	MaxToolCalls int

	// Sanitize enables the content-safety pass over final answers.
	Sanitize bool

	// WeatherAPIKey is the OpenWeatherMap key for the get_weather tool.
	WeatherAPIKey string

	// AgentWorkDir confines the file_operations tool.
	AgentWorkDir string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	weaviateClient *weaviate.Client
	embedding      *retrieval.EmbeddingClient
	store          *conversation.Store
	querySvc       *services.QueryService
	tracerCleanup  func(context.Context)
}

// Compile-time interface compliance.
var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all components in order: tracing, metrics, the Weaviate
// client, the LLM backend, the conversation store, the tool registry and
// loop, and finally the HTTP router. A missing or misconfigured LLM
// backend is the one fatal condition: the service cannot answer anything
// without it. Weaviate being unreachable only disables retrieval.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, continuing without knowledge retrieval",
			"error", err)
	}

	// The LLM backend is the only hard dependency. Report its absence
	// distinctly so operators see it is a startup problem, not a
	// degraded answer.
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("LLM backend unavailable: %w", err)
	}

	s.initPipeline()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "gemini"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "biegeai-otel-collector:4317"
	}
	if cfg.MaxToolCalls == 0 {
		cfg.MaxToolCalls = 5
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
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
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
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

// initWeaviate initializes the Weaviate vector database client.
//
// # Limitations
//
//   - Returns nil error if WeaviateURL is empty (optional dependency)
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, knowledge retrieval disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureWeaviateSchema(s.weaviateClient); err != nil {
		s.weaviateClient = nil
		return fmt.Errorf("failed to ensure Weaviate schema: %w", err)
	}

	if s.config.EmbeddingURL == "" {
		slog.Warn("EMBEDDING_SERVICE_URL not configured, knowledge retrieval disabled")
		s.weaviateClient = nil
		return nil
	}
	s.embedding = retrieval.NewEmbeddingClient(s.config.EmbeddingURL)

	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	client, err := llm.NewClient(context.Background(), s.config.LLMBackend)
	if err != nil {
		return err
	}
	s.llmClient = client
	slog.Info("Using LLM backend", "backend", s.config.LLMBackend)
	return nil
}

// initPipeline wires the conversation store, retriever, tool registry,
// and query service together.
func (s *service) initPipeline() {
	s.store = conversation.NewStore(s.config.Conversation)
	s.store.SetEvictionFunc(func(expired, evicted int) {
		observability.RecordSessionRemovals(expired, evicted)
	})

	var retriever retrieval.Retriever
	if s.weaviateClient != nil && s.embedding != nil {
		retriever = retrieval.NewWeaviateRetriever(s.weaviateClient, s.embedding)
	}

	completer := agent.NewLLMCompleter(s.llmClient, llm.GenerationParams{})
	registry := agent.NewRegistry(agent.BuiltinTools(agent.SuiteConfig{
		Retriever:     retriever,
		Completer:     completer,
		WeatherAPIKey: s.config.WeatherAPIKey,
		WorkDir:       s.config.AgentWorkDir,
	})...)
	loop := agent.NewToolLoop(registry, completer, agent.LoopConfig{
		MaxToolCalls: s.config.MaxToolCalls,
		Sanitize:     s.config.Sanitize,
	})

	s.querySvc = services.NewQueryService(s.store, retriever, loop, s.config.Query)
	slog.Info("Query pipeline initialized",
		"tools", registry.Len(),
		"retrieval_enabled", retriever != nil,
		"max_tool_calls", s.config.MaxToolCalls,
	)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("orchestrator-service"))
	s.router.Use(middleware.RequestID())

	routes.SetupRoutes(s.router, s.querySvc, s.store, s.weaviateClient,
		s.embedding, s.config.EnableMetrics)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
