// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the core orchestrator service for EchoMind.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the OpenAI client, per-user state storage,
// the retrieval index, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12250, SchemaConfigPath: "config/standard.json"}
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

	badger "github.com/dgraph-io/badger/v4"
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

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/auth"
	"github.com/AleutianAI/echomind/services/llm"
	"github.com/AleutianAI/echomind/services/museum"
	"github.com/AleutianAI/echomind/services/orchestrator/conversation"
	"github.com/AleutianAI/echomind/services/orchestrator/observability"
	"github.com/AleutianAI/echomind/services/orchestrator/routes"
	"github.com/AleutianAI/echomind/services/rag"
	"github.com/AleutianAI/echomind/services/storage"
	"github.com/AleutianAI/echomind/services/userstate"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet (planned for future)
//   - Run() blocks until server error
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
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
// Values can be populated from a YAML file, environment variables, or
// programmatically for testing.
//
// # Required Fields
//
//   - SchemaConfigPath: the mode schema JSON the profile layer is built on
//
// # Examples
//
//	// Minimal config (uses defaults for everything else)
//	cfg := Config{SchemaConfigPath: "config/standard.json"}
//
//	// Remote vector search plus live corpus watching
//	cfg := Config{
//	    SchemaConfigPath: "config/standard.json",
//	    WeaviateURL:      "http://localhost:8080",
//	    WatchDocs:        true,
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12250
	Port int

	// DataDir is the BadgerDB directory for per-user state.
	// Default: "./data/userstate"
	DataDir string

	// SchemaConfigPath is the profile schema JSON file. Required.
	SchemaConfigPath string

	// OpenAIKeyPath is an explicit key file path. If empty, the key is
	// resolved from the environment and the default key file locations.
	OpenAIKeyPath string

	// DocsDir is the retrieval corpus root. Default: "./data/docs"
	DocsDir string

	// ManifestPath is where the index manifest is persisted.
	// Default: "<DataDir>/index_manifest.json"
	ManifestPath string

	// CredentialsPath is the account credentials file.
	// Default: "<DataDir>/credentials.json"
	CredentialsPath string

	// MuseumDir is the artwork gallery directory. Default: "./data/museum"
	MuseumDir string

	// WeaviateURL enables the Weaviate-backed vector searcher.
	// If empty, the in-memory searcher is used.
	WeaviateURL string

	// WatchDocs enables the fsnotify corpus watcher, which triggers
	// incremental index builds when files under DocsDir change.
	WatchDocs bool

	// BuildIndexOnStart runs one build pass during New(). A failed
	// build is logged, not fatal; the index stays uninitialized until
	// a rebuild succeeds.
	BuildIndexOnStart bool

	// RetrievalTopK is the number of chunks a retrieval returns.
	// Default: 3
	RetrievalTopK int

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "echomind-otel-collector:4317"
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - db: BadgerDB handle backing the user state store
//   - store: Per-user, per-mode state store
//   - creds: Account credentials store
//   - llmClient: OpenAI client (generation, classification, embeddings)
//   - index: Incremental retrieval index
//   - watcher: Optional corpus watcher (nil unless WatchDocs)
//   - gallery: Museum artwork gallery
//   - convSvc: Conversation turn service
//   - tracerCleanup: Function to shutdown tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	db            *badger.DB
	gcRunner      *storage.GCRunner
	store         *userstate.BadgerStore
	creds         *auth.FileStore
	llmClient     llm.LLMClient
	index         *rag.Index
	watcher       *rag.Watcher
	watcherCancel context.CancelFunc
	gallery       *museum.Gallery
	convSvc       *conversation.Service
	metrics       *observability.TurnMetrics
	schema        *config.SchemaConfig
	tracerCleanup func(context.Context)
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
//  4. Loads the profile schema and opens the BadgerDB state store
//  5. Creates the OpenAI client
//  6. Creates the retrieval index (memory or Weaviate searcher)
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults, except
//     SchemaConfigPath which is required.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - The OpenAI key must be resolvable at startup
//   - The Weaviate connection, when configured, must be reachable
//
// # Assumptions
//
//   - DataDir is writable
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	s.metrics = observability.InitMetrics()

	// Load the profile schema
	s.schema, err = config.LoadSchemaConfig(s.config.SchemaConfigPath)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load schema config: %w", err)
	}

	// Open the state store
	if err := s.initStorage(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	// Initialize the OpenAI client
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Initialize the retrieval index
	if err := s.initIndex(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize retrieval index: %w", err)
	}

	s.creds = auth.NewFileStore(s.config.CredentialsPath)
	s.gallery = museum.NewGallery(s.config.MuseumDir)
	s.convSvc = conversation.NewService(s.store, s.llmClient, s.index, s.schema, s.metrics)

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
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
		cfg.Port = 12250
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/userstate"
	}
	if cfg.DocsDir == "" {
		cfg.DocsDir = "./data/docs"
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = cfg.DataDir + "/index_manifest.json"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = cfg.DataDir + "/credentials.json"
	}
	if cfg.MuseumDir == "" {
		cfg.MuseumDir = "./data/museum"
	}
	if cfg.RetrievalTopK == 0 {
		cfg.RetrievalTopK = 3
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "echomind-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
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
		resource.WithAttributes(semconv.ServiceNameKey.String("echomind-orchestrator")))
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

// initStorage opens the BadgerDB state store and starts value log GC.
func (s *service) initStorage() error {
	storageCfg := storage.DefaultConfig()
	storageCfg.Path = s.config.DataDir
	storageCfg.Logger = slog.Default()

	db, err := storage.Open(storageCfg)
	if err != nil {
		return err
	}
	s.db = db
	s.store = userstate.NewBadgerStore(db, s.schema)

	runner, err := storage.NewGCRunner(db, storageCfg.GCInterval, storageCfg.GCDiscardRatio, slog.Default())
	if err != nil {
		return err
	}
	runner.Start()
	s.gcRunner = runner

	slog.Info("State store opened", "path", s.config.DataDir)
	return nil
}

// initLLMClient resolves the OpenAI API key and creates the client.
func (s *service) initLLMClient() error {
	key, err := config.ResolveOpenAIKey(s.config.OpenAIKeyPath)
	if err != nil {
		return err
	}

	client, err := llm.NewOpenAIClient(key)
	if err != nil {
		return err
	}
	s.llmClient = client

	slog.Info("Using OpenAI LLM backend")
	return nil
}

// initIndex creates the retrieval index, picks the searcher backend, and
// optionally runs a first build pass and starts the corpus watcher.
//
// # Limitations
//
//   - A failed startup build leaves the index uninitialized; retrievals
//     degrade until a rebuild succeeds
func (s *service) initIndex() error {
	embedder, ok := s.llmClient.(llm.Embedder)
	if !ok {
		return fmt.Errorf("LLM backend does not support embeddings")
	}

	searcher, err := s.initSearcher()
	if err != nil {
		return err
	}

	s.index = rag.NewIndex(rag.Config{
		DocsDir:      s.config.DocsDir,
		ManifestPath: s.config.ManifestPath,
		TopK:         s.config.RetrievalTopK,
	}, embedder, searcher)

	if s.config.BuildIndexOnStart {
		if err := s.index.BuildOrUpdate(context.Background()); err != nil {
			slog.Warn("Startup index build failed, retrievals degrade until rebuild",
				"error", err)
		} else {
			stats := s.index.Stats()
			s.metrics.RecordIndexBuild(true, stats.TotalChunks)
			slog.Info("Startup index build complete",
				"documents", stats.Documents,
				"total_chunks", stats.TotalChunks)
		}
	}

	if s.config.WatchDocs {
		watcher, err := rag.NewWatcher(s.index, 0)
		if err != nil {
			return fmt.Errorf("failed to create corpus watcher: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := watcher.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to start corpus watcher: %w", err)
		}
		s.watcher = watcher
		s.watcherCancel = cancel
		slog.Info("Corpus watcher started", "docs_dir", s.config.DocsDir)
	}

	return nil
}

// initSearcher picks the vector search backend. A configured Weaviate
// URL must parse and connect; an empty URL falls back to the in-memory
// searcher.
func (s *service) initSearcher() (rag.Searcher, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, using in-memory searcher")
		return rag.NewMemorySearcher(), nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	searcher, err := rag.NewWeaviateSearcher(context.Background(), client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Weaviate searcher: %w", err)
	}

	slog.Info("Weaviate searcher initialized", "url", weaviateURL)
	return searcher, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("echomind-orchestrator"))

	routes.SetupRoutes(s.router, s.convSvc, s.store, s.creds, s.index, s.gallery, s.metrics)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure. Stops the
// corpus watcher and GC runner, closes the database, and shuts down
// the tracer.
func (s *service) cleanup() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.watcherCancel != nil {
		s.watcherCancel()
	}

	if s.gcRunner != nil {
		s.gcRunner.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("State store close error", "error", err)
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
