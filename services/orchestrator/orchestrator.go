// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the grounded question answering service.
//
// This package contains the main Service type that wires together all
// components: HTTP routing, the completion backend, query embedding, the
// Weaviate retrieval layer, optional page image fetching, and the
// observability infrastructure.
//
// # Enterprise Integration
//
// The orchestrator supports dependency injection via extensions.ServiceOptions,
// enabling enterprise builds to provide custom implementations of:
//   - AuthProvider: Custom authentication (JWT, API keys)
//   - AuthzProvider: Role-based access control
//   - AuditLogger: Compliance audit logging
//   - MessageFilter: PII detection and redaction
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := orchestrator.Config{Port: 12210, Model: "gpt-4o"}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Enterprise (with custom implementations):
//
//	opts := &extensions.ServiceOptions{
//	    AuthProvider: enterpriseAuth,
//	    AuditLogger:  enterpriseAudit,
//	}
//	svc, err := orchestrator.New(cfg, opts)
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
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

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/llm"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/retrieval"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianAnswers/services/policy_engine"

	imagestore "github.com/AleutianAI/AleutianAnswers/services/orchestrator/images"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. The interface follows the minimal surface
// area principle - only essential lifecycle methods are exposed.
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
	// Callers must not modify the router after construction.
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
// Values can be populated from environment variables, config files,
// or programmatically for testing.
//
// # Examples
//
//	// Minimal config (uses all defaults except Weaviate)
//	cfg := Config{WeaviateURL: "http://localhost:8080"}
//
//	// Full configuration
//	cfg := Config{
//	    Port:              12210,
//	    Model:             "gpt-4o",
//	    EmbeddingModel:    "text-embedding-ada-002",
//	    WeaviateURL:       "http://localhost:8080",
//	    ImageBucket:       "contract-page-images",
//	    ImageEmbeddingURL: "http://embedder:9200/embed/image",
//	    OTelEndpoint:      "localhost:4317",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// Model is the chat completion model driving both pipelines.
	// Must be a model with a known context window. Default: "gpt-4o"
	Model string

	// Deployment optionally names an Azure OpenAI deployment of Model.
	// When set it is used as the API-level model identifier.
	Deployment string

	// EmbeddingModel is the text embedding model for query vectors.
	// Default: "text-embedding-ada-002"
	EmbeddingModel string

	// WeaviateURL is the Weaviate vector database URL. Required: retrieval
	// is the heart of the pipeline and the service refuses to start blind.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// WeaviateClass overrides the document class name.
	// Default: "ContractChunk"
	WeaviateClass string

	// ImageBucket is the GCS bucket holding rendered page images.
	// If empty, answers are text-only and image fetching is disabled.
	ImageBucket string

	// ImageEmbeddingURL is the image-modality embedding service endpoint.
	// If empty, the imageEmbedding vector field is unavailable.
	ImageEmbeddingURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// RateLimitPerSecond is the per-IP token refill rate for /v1 routes.
	// Zero or negative disables rate limiting.
	RateLimitPerSecond float64

	// RateLimitBurst is the per-IP burst capacity. Defaults to 10 when
	// rate limiting is enabled and the value is unset.
	RateLimitBurst int

	// TrustProxyHeaders enables X-Real-IP / X-Forwarded-For client
	// identification for rate limiting. Only set behind a reverse proxy.
	TrustProxyHeaders bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Completion Backend Adapter
// =============================================================================

// completionBackend adapts llm.ChatClient to the pipeline's
// CompletionService. The stream types are structurally identical but Go
// interfaces do not convert across return types, so the adapter restates
// the methods.
type completionBackend struct {
	client llm.ChatClient
}

func (b *completionBackend) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return b.client.CreateChatCompletion(ctx, req)
}

func (b *completionBackend) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (approaches.CompletionStream, error) {
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

var _ approaches.CompletionService = (*completionBackend)(nil)

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - opts: Extension options for enterprise features
//   - router: Gin HTTP engine
//   - completions: Chat completion backend
//   - weaviateClient: Vector database client
//   - chatApproach: Conversational pipeline
//   - askApproach: Single-turn retrieve-then-read pipeline
//   - tracerCleanup: Function to shutdown tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New() returns.
type service struct {
	config         Config
	opts           extensions.ServiceOptions
	router         *gin.Engine
	completions    approaches.CompletionService
	weaviateClient *weaviate.Client
	chatApproach   approaches.Approach
	askApproach    *approaches.RetrieveThenRead
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all orchestrator components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the OpenAI-compatible completion client
//  5. Connects to Weaviate and ensures the document schema
//  6. Builds the embedder and optional image fetcher
//  7. Constructs both answer pipelines and the HTTP router
//
// If opts is nil, DefaultOptions() is used (no-op implementations) with the
// embedded policy message filter installed as the inbound content scanner.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults; WeaviateURL
//     is required.
//   - opts: Extension options for enterprise features. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - OPENAI_API_KEY (or the Podman secret) is available
//   - Network is available for external service connections
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Apply extension options (use defaults if nil)
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
		// The open source build still scans inbound messages against the
		// embedded classification patterns; enterprise builds replace
		// this with their own MessageFilter.
		filter, err := policy_engine.NewMessageFilter()
		if err != nil {
			return nil, fmt.Errorf("failed to build policy message filter: %w", err)
		}
		s.opts.MessageFilter = filter
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	observability.InitMetrics()
	slog.Info("Initialized Prometheus metrics for answer pipelines")

	// Initialize Weaviate client (required)
	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize Weaviate: %w", err)
	}

	// Initialize the completion backend and both pipelines
	if err := s.initPipelines(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize pipelines: %w", err)
	}

	// Setup HTTP router
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
	slog.Info("Starting orchestrator server", "port", s.config.Port, "model", s.config.Model)

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
		cfg.Port = 12210
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.AdaEmbeddingV2)
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
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

// initWeaviate connects to the vector database and ensures the schema.
//
// Unlike optional collaborators, Weaviate is mandatory: a grounded answer
// service with no document index has nothing to ground on.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" {
		return fmt.Errorf("WeaviateURL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureWeaviateSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return nil
}

// initPipelines builds the completion backend, retrieval collaborators,
// and both answer pipelines.
func (s *service) initPipelines() error {
	openaiClient, err := llm.NewOpenAIClient()
	if err != nil {
		return fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	s.completions = &completionBackend{client: openaiClient}

	searcher := retrieval.NewWeaviateSearcher(s.weaviateClient, retrieval.SearcherConfig{
		ClassName: s.config.WeaviateClass,
	}, nil)

	embedder := retrieval.NewEmbedder(retrieval.EmbedderConfig{
		OpenAIClient:    openaiClient.Embeddings(),
		Model:           s.config.EmbeddingModel,
		ImageServiceURL: s.config.ImageEmbeddingURL,
	})

	chatConfig := approaches.ChatConfig{
		Completions: s.completions,
		Searcher:    searcher,
		Embedder:    embedder,
		Model:       s.config.Model,
		Deployment:  s.config.Deployment,
	}

	// The answer variant is fixed at construction: vision-augmented when
	// a page-image bucket is configured, text-only otherwise.
	if s.config.ImageBucket != "" {
		gcsClient, err := storage.NewClient(context.Background())
		if err != nil {
			return fmt.Errorf("failed to create GCS client: %w", err)
		}
		chatConfig.Images = imagestore.NewGCSImageFetcher(gcsClient, s.config.ImageBucket, nil)
		slog.Info("Page image fetching enabled", "bucket", s.config.ImageBucket)
		s.chatApproach, err = approaches.NewChatReadRetrieveReadVision(chatConfig)
		if err != nil {
			return fmt.Errorf("failed to build chat pipeline: %w", err)
		}
	} else {
		slog.Info("No image bucket configured, answers are text-only")
		s.chatApproach, err = approaches.NewChatReadRetrieveRead(chatConfig)
		if err != nil {
			return fmt.Errorf("failed to build chat pipeline: %w", err)
		}
	}

	s.askApproach = approaches.NewRetrieveThenRead(approaches.AskConfig{
		Completions: s.completions,
		Searcher:    searcher,
		Embedder:    embedder,
		Model:       s.config.Model,
		Deployment:  s.config.Deployment,
	})

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("orchestrator-service"))

	rc := routes.RouteConfig{TrustProxyHeaders: s.config.TrustProxyHeaders}
	if s.config.RateLimitPerSecond > 0 {
		burst := s.config.RateLimitBurst
		if burst <= 0 {
			burst = 10
		}
		rc.Limiter = middleware.NewRateLimiter(s.config.RateLimitPerSecond, burst)
	}

	routes.SetupRoutes(s.router, s.chatApproach, s.askApproach, s.opts, rc)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
