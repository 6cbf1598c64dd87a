package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paydesk/paydesk/internal/config"
	"github.com/paydesk/paydesk/internal/log"
	"github.com/paydesk/paydesk/internal/scoring"
	"github.com/paydesk/paydesk/internal/tools"
)

// Setup creates and initializes the application, including the agent for
// the configured persona. Returns an App with embedded cleanup; call
// Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := SetupCore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.SwitchPersona(cfg.Persona); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// SetupCore initializes everything except the agent: provider, embedder,
// warehouse pool and tool registry. The index command uses this directly
// because the persona's memory directory may not exist yet.
func SetupCore(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}
	a.Logger = log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	pool, err := provideWarehousePool(ctx, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	registry, err := provideRegistry(g, cfg, pool, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
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

	default: // "gemini" / "googleai"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideWarehousePool connects to the merchant data warehouse. An empty
// WarehouseURL disables the execute_sql tool and yields a nil pool.
func provideWarehousePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if cfg.WarehouseURL == "" {
		logger.Info("no warehouse configured, execute_sql will report unavailability")
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.WarehouseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing warehouse connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating warehouse pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging warehouse: %w", err)
	}

	logger.Info("warehouse pool connected")
	return pool, nil
}

// provideRegistry creates the tool collaborators and registers every tool
// with Genkit. Unconfigured collaborators stay nil; their tools report the
// missing service as a result instead of failing registration.
func provideRegistry(g *genkit.Genkit, cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (*tools.Registry, error) {
	var querier tools.RowQuerier
	if pool != nil {
		querier = tools.NewPoolQuerier(pool)
	}

	var ranker tools.ProductRanker
	var planner tools.PricePlanner
	if cfg.ScoringURL != "" {
		client, err := scoring.NewClient(cfg.ScoringURL,
			time.Duration(cfg.ScoringTimeoutMS)*time.Millisecond, logger)
		if err != nil {
			return nil, fmt.Errorf("creating scoring client: %w", err)
		}
		ranker, planner = client, client
	} else {
		logger.Info("no scoring service configured, recommendation tools will report unavailability")
	}

	registry, err := tools.Register(g, tools.Deps{
		Clock:       tools.NewClock(),
		Warehouse:   tools.NewWarehouse(querier, logger),
		Recommender: tools.NewRecommender(ranker, planner, tools.NewQuarantine(cfg.QuarantinedProducts), logger),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return registry, nil
}

// parseLogLevel maps the configured level name to a slog level. Unknown
// names fall back to info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
