package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	coreapi "github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/deskwise/deskwise/db"
	"github.com/deskwise/deskwise/internal/api"
	"github.com/deskwise/deskwise/internal/chunk"
	"github.com/deskwise/deskwise/internal/config"
	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/embedding"
	"github.com/deskwise/deskwise/internal/knowledge"
	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/orchestrator"
	"github.com/deskwise/deskwise/internal/retrieve"
	"github.com/deskwise/deskwise/internal/router"
	"github.com/deskwise/deskwise/internal/session"
	"github.com/deskwise/deskwise/internal/tools"
	"github.com/deskwise/deskwise/internal/vector"
)

// Setup creates and initializes the application. On error everything
// already initialized is released; on success the caller owns Close().
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Model = genkit.LookupModel(g, cfg.FullModelName())
	if a.Model == nil {
		return nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, cfg.Provider)
	}

	rawEmbedder := provideEmbedder(g, cfg)
	if rawEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedding.New(rawEmbedder, embedding.DefaultRetryConfig(), nil, logger)

	docs := document.NewPostgresStore(pool)
	index := vector.NewPostgres(pool)
	a.Sessions = session.NewPostgresStore(pool)

	a.Knowledge = knowledge.NewService(docs, index, a.Embedder, cfg.MaxUploadBytes, logger,
		knowledge.WithChunking(chunk.Options{
			TargetTokens:  cfg.TargetTokens,
			OverlapTokens: cfg.OverlapTokens,
		}))

	a.Registry, a.Executor, a.Tickets = provideTools(logger)

	a.Orchestrator = orchestrator.New(
		g,
		a.Model,
		router.New(g, a.Model, logger),
		retrieve.New(a.Embedder, index, logger),
		docs,
		a.Sessions,
		a.Registry,
		a.Executor,
		orchestrator.Config{
			MaxIterations: cfg.MaxIterations,
			TurnTimeout:   time.Duration(cfg.TurnTimeoutSec) * time.Second,
		},
		logger,
	)

	a.Server = api.NewServer(api.ServerConfig{
		Knowledge: a.Knowledge,
		Runner:    a.Orchestrator,
		Sessions:  a.Sessions,
		Readiness: pool,
		Logger:    logger,
		RateBurst: cfg.RateBurst,
	})

	return a, nil
}

// provideOtelShutdown wires OTLP HTTP trace export into Genkit's tracer
// provider. Export is disabled when no endpoint is configured.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if tc.Endpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at span creation.
	// SAFETY: os.Setenv is not concurrent-safe, but Setup runs exactly
	// once before any goroutines are spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tc.Endpoint),
		otlptracehttp.WithInsecure(), // collector runs on localhost
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", tc.Endpoint,
		"service", tc.ServiceName,
		"environment", tc.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models register explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. Each provider keys embedders differently.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, coreapi.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideTools builds the registry with the builtin toolset and its
// executor.
func provideTools(logger log.Logger) (*tools.Registry, *tools.Executor, *tools.MemoryTicketSink) {
	registry := tools.NewRegistry()
	sink := tools.NewMemoryTicketSink()
	tools.RegisterBuiltins(registry, sink)
	return registry, tools.NewExecutor(registry, logger), sink
}
