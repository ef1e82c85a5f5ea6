// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the HTTP service for PatentScout.
//
// This package contains the main service type that coordinates all
// components: the extraction workflow, run persistence, search and LLM
// backends, the review API, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12310, LLMBackend: "ollama"}
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
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/PatentScout/services/extraction"
	"github.com/AleutianAI/PatentScout/services/llm"
	"github.com/AleutianAI/PatentScout/services/orchestrator/archive"
	"github.com/AleutianAI/PatentScout/services/orchestrator/observability"
	"github.com/AleutianAI/PatentScout/services/orchestrator/routes"
	"github.com/AleutianAI/PatentScout/services/orchestrator/settings"
	"github.com/AleutianAI/PatentScout/services/orchestrator/telemetry"
	"github.com/AleutianAI/PatentScout/services/patents"
	"github.com/AleutianAI/PatentScout/services/pipeline"
	"github.com/AleutianAI/PatentScout/services/pipeline/store"
	"github.com/AleutianAI/PatentScout/services/search"
)

// Service defines the contract for the PatentScout service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// Config holds service configuration options.
//
// # Required Fields
//
// None - all fields have sensible defaults. Without API keys the
// service still starts; search-dependent stages degrade.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "ollama", "openai". Default: "ollama"
	LLMBackend string

	// SearchBackend specifies the web search provider.
	// Valid values: "tavily", "brave", "" (disabled). Default: "tavily"
	SearchBackend string

	// ClassifierURL is the IPC classifier service URL. If empty, the
	// static fallback table is used.
	ClassifierURL string

	// FetcherURL is the patent document fetcher service URL. If empty,
	// candidate pages are fetched and sectioned directly.
	FetcherURL string

	// StorePath is the Badger database directory for run persistence.
	// If empty, runs are kept in memory only.
	StorePath string

	// WeaviateURL is the Weaviate URL for run archiving.
	// If empty, archiving is disabled.
	WeaviateURL string

	// InfluxDB names the telemetry target. Incomplete config
	// disables telemetry.
	InfluxDB telemetry.Config

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "patentscout-otel-collector:4317"
	OTelEndpoint string

	// SettingsPath is the YAML settings file watched for runtime
	// tunables. Default: "./patentscout.yaml"
	SettingsPath string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// SweepInterval is how often the run store sweeper runs.
	// Default: 1 hour
	SweepInterval time.Duration
}

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns, except the sweeper retention which the settings watcher may
// adjust.
type service struct {
	config Config
	router *gin.Engine

	orch      *extraction.Orchestrator
	runStore  store.RunStore
	sweeper   *store.Sweeper
	watcher   *settings.Watcher
	archiver  *archive.Archiver
	telemetry *telemetry.Recorder

	generator   llm.Generator
	searchCli   search.Client
	classifier  patents.Classifier
	fetcher     patents.Fetcher
	weaviateCli *weaviate.Client

	tracerCleanup func(context.Context)
}

// New creates a PatentScout Service with the given configuration.
//
// # Description
//
// New initializes all components in order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Loads runtime settings and starts the settings watcher
//  4. Opens the run store (Badger or in-memory) and its sweeper
//  5. Creates the LLM, search, classifier, and fetcher collaborators
//  6. Initializes Weaviate archiving and InfluxDB telemetry (optional)
//  7. Builds the extraction orchestrator and HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run service
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

	observability.InitMetrics()
	initMeterProvider()

	if err := s.initSettings(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize run store: %w", err)
	}

	if err := s.initCollaborators(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, archiving disabled",
			"error", err)
		// Not fatal - continue without archiving
	}
	s.archiver = archive.New(s.weaviateCli)
	s.telemetry = telemetry.New(s.config.InfluxDB)

	if err := s.initOrchestrator(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize extraction workflow: %w", err)
	}

	s.initRouter()

	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting PatentScout server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.SearchBackend == "" {
		cfg.SearchBackend = "tavily"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "patentscout-otel-collector:4317"
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = "./patentscout.yaml"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Hour
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
		resource.WithAttributes(semconv.ServiceNameKey.String("patentscout-orchestrator")))
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

// meterOnce guards global meter provider setup: the exporter registers
// collectors with the default Prometheus registerer, which rejects
// duplicates.
var meterOnce sync.Once

// initMeterProvider bridges OpenTelemetry instruments (the pipeline
// executor's stage and run metrics) into the Prometheus registry served
// at /metrics.
func initMeterProvider() {
	meterOnce.Do(func() {
		exporter, err := otelprom.New()
		if err != nil {
			slog.Warn("failed to create Prometheus metric exporter", "error", err)
			return
		}
		otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	})
}

// initSettings loads the settings file and starts watching it. Reloads
// adjust the sweeper retention; other tunables apply to the next start.
func (s *service) initSettings() error {
	watcher, err := settings.NewWatcher(s.config.SettingsPath, func(updated settings.Settings) {
		if s.sweeper != nil {
			s.sweeper.SetRetention(updated.RunRetention)
		}
		slog.Info("Runtime settings updated",
			"run_retention", updated.RunRetention.String(),
			"max_queries", updated.MaxQueries,
			"max_attempts", updated.MaxAttempts)
	})
	if err != nil {
		return err
	}
	s.watcher = watcher
	return nil
}

// initStore opens the run store and starts the TTL sweeper.
func (s *service) initStore() error {
	if s.config.StorePath == "" {
		slog.Info("No store path configured, using in-memory run store")
		s.runStore = store.NewMemoryStore()
	} else {
		badgerStore, err := store.NewBadgerStore(store.BadgerConfig{
			Path: s.config.StorePath,
		})
		if err != nil {
			return err
		}
		s.runStore = badgerStore
		slog.Info("Opened Badger run store", "path", s.config.StorePath)
	}

	current := s.watcher.Current()
	sweeper, err := store.NewSweeper(s.runStore, current.RunRetention,
		s.config.SweepInterval, slog.Default())
	if err != nil {
		return err
	}
	s.sweeper = sweeper
	s.sweeper.Start()
	return nil
}

// initCollaborators creates the LLM, search, classifier, and fetcher
// clients. The generator is required; everything else degrades.
func (s *service) initCollaborators() error {
	var err error

	switch s.config.LLMBackend {
	case "ollama":
		s.generator, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		s.generator, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.generator, err = llm.NewOllamaClient()
	}
	if err != nil {
		return err
	}

	var searchCli search.Client
	switch s.config.SearchBackend {
	case "tavily":
		searchCli, err = search.NewTavilyClient()
	case "brave":
		searchCli, err = search.NewBraveClient()
	case "":
		// Search disabled; expansion and discovery degrade.
	default:
		slog.Warn("Unknown search backend, search disabled", "backend", s.config.SearchBackend)
	}
	if err != nil {
		slog.Warn("Search client unavailable, search-dependent stages will degrade",
			"backend", s.config.SearchBackend, "error", err)
		searchCli = nil
	}
	if searchCli != nil {
		limited := search.WithRateLimit(searchCli, 5, 5)
		s.searchCli = search.WithBreaker(limited, search.DefaultCircuitBreakerConfig())
		slog.Info("Search client initialized", "backend", s.config.SearchBackend)
	}

	s.classifier = patents.NewHTTPClassifier(s.config.ClassifierURL)
	s.fetcher = patents.NewHTTPFetcher(s.config.FetcherURL)
	return nil
}

// initWeaviate initializes the Weaviate client for run archiving.
//
// # Limitations
//
//   - Returns nil error if WeaviateURL is empty (optional dependency)
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, archiving disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.EnsureSchema(ctx, client); err != nil {
		return err
	}

	s.weaviateCli = client
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initOrchestrator builds the extraction workflow over the run store.
// Terminal runs are archived and recorded off the request path.
func (s *service) initOrchestrator() error {
	current := s.watcher.Current()

	orch, err := extraction.NewOrchestrator(
		extraction.Collaborators{
			Generator:  s.generator,
			Search:     s.searchCli,
			Fetcher:    s.fetcher,
			Classifier: s.classifier,
		},
		s.runStore,
		extraction.Config{
			MaxAttempts: current.MaxAttempts,
			Options: extraction.Options{
				MaxQueries:         current.MaxQueries,
				SnippetsPerKeyword: current.SnippetsPerKeyword,
				ResultsPerQuery:    current.ResultsPerQuery,
				ExpandWorkers:      current.ExpandWorkers,
				ScoreWorkers:       current.ScoreWorkers,
			},
			OnFinish: s.onRunFinished,
		},
	)
	if err != nil {
		return err
	}
	s.orch = orch
	return nil
}

// onRunFinished archives and records a terminal run in the background.
func (s *service) onRunFinished(run *pipeline.Run[*extraction.State]) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if s.archiver.Enabled() {
			if err := s.archiver.ArchiveRun(ctx, run); err != nil {
				slog.Warn("Failed to archive run", "run_id", run.ID, "error", err)
			}
		}
		s.telemetry.RecordRun(ctx, run)
	}()
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("patentscout-orchestrator"))

	routes.SetupRoutes(s.router, s.orch, routes.Collaborators{
		Generator:  s.generator,
		Classifier: s.classifier,
		Fetcher:    s.fetcher,
		Search:     s.searchCli,
		Archiver:   s.archiver,
		Settings:   s.watcher,
	})
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Warn("settings watcher close error", "error", err)
		}
	}
	if s.runStore != nil {
		if err := s.runStore.Close(); err != nil {
			slog.Warn("run store close error", "error", err)
		}
	}
	s.telemetry.Close()
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
