package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
	"github.com/yojanadesk/scheme-rag/internal/core/usecase"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/llm"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/llm/groq"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/llm/ollama"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/queue/nats"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/repository/postgres"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/resilience"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/vector/qdrant"
	"github.com/yojanadesk/scheme-rag/internal/observability/logging"
	"github.com/yojanadesk/scheme-rag/internal/observability/metrics"
)

// App wires the retrieval engine together. Postgres, NATS and the groq tier
// are optional; an empty DSN, URL or API key leaves them out.
type App struct {
	Config config.Config
	Tuning config.Tuning
	Logger *slog.Logger

	Metrics   *metrics.RetrievalMetrics
	Retriever ports.SchemeRetriever
	Workflow  ports.AnswerWorkflow
	Queue     *nats.Queue

	lexical  *usecase.LexicalIndex
	resolver *usecase.EntityResolver

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		logger.Warn("tuning_load_failed", "path", cfg.TuningPath, "error", err)
	}

	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection)
	if err := vectorStore.Ping(ctx); err != nil {
		return nil, fmt.Errorf("qdrant ping: %w", err)
	}

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:    cfg.OllamaURL,
		GenModel:   cfg.OllamaGenModel,
		EmbedModel: cfg.OllamaEmbedModel,
		RatePerSec: cfg.LLMRatePerSec,
		RateBurst:  cfg.LLMRateBurst,
		Resilience: resilience.LLMDefaults(),
		Logger:     logger,
	})

	var completion ports.CompletionService
	if cfg.GroqAPIKey != "" {
		heavy := groq.New(groq.Config{
			BaseURL:    cfg.GroqURL,
			APIKey:     cfg.GroqAPIKey,
			Model:      cfg.GroqModel,
			Resilience: resilience.LLMDefaults(),
			Logger:     logger,
		})
		completion = llm.NewTiered(ollamaClient, heavy)
	} else {
		logger.Info("groq_disabled", "reason", "no api key configured")
		completion = llm.NewTiered(ollamaClient, nil)
	}

	var m *metrics.RetrievalMetrics
	if cfg.MetricsEnabled {
		m = metrics.NewRetrievalMetrics("api")
	}

	lexical := usecase.NewLexicalIndex(vectorStore, cfg.ScrollPageSize, logger)
	resolver := usecase.NewEntityResolver(vectorStore, completion, tuning, cfg.ScrollPageSize, logger)
	hybrid := usecase.NewHybridRetriever(ollamaClient, vectorStore, lexical, tuning, logger)
	metadata := usecase.NewMetadataRetriever(ollamaClient, vectorStore, hybrid, tuning, cfg.ScrollPageSize, logger)
	threshold := usecase.NewAdaptiveThreshold(tuning, logger)
	if m != nil {
		threshold.SetObserver(func(d domain.ThresholdDecision) {
			m.RecordThresholdMethod("api", d.Method)
		})
	}
	router := usecase.NewRouter(resolver, hybrid, metadata, threshold, tuning, logger)

	var queryLog ports.QueryLogStore
	closeFn := func() {}
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewQueryLogRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		queryLog = repo
		closeFn = func() { _ = db.Close() }
	} else {
		logger.Info("query_log_disabled", "reason", "no postgres dsn configured")
	}

	workflow := usecase.NewRefinementWorkflow(router, completion, queryLog, tuning, logger)

	var queue *nats.Queue
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Logger: logger})
		if err != nil {
			closeFn()
			return nil, fmt.Errorf("init reindex queue: %w", err)
		}
	} else {
		logger.Info("reindex_queue_disabled", "reason", "no nats url configured")
	}

	app := &App{
		Config: cfg,
		Tuning: tuning,
		Logger: logger,

		Metrics:   m,
		Retriever: router,
		Workflow:  workflow,
		Queue:     queue,

		lexical:  lexical,
		resolver: resolver,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			closeFn()
		},
	}

	app.RebuildIndexes(ctx, "startup")
	return app, nil
}

// RebuildIndexes refreshes the lexical and entity snapshots. Failures leave
// the previous snapshots in place and the engine on its degraded paths.
func (a *App) RebuildIndexes(ctx context.Context, reason string) {
	lexErr := a.lexical.Rebuild(ctx)
	if lexErr != nil {
		a.Logger.Warn("lexical_rebuild_failed", "reason", reason, "error", lexErr)
	}
	resErr := a.resolver.Rebuild(ctx)
	if resErr != nil {
		a.Logger.Warn("entity_rebuild_failed", "reason", reason, "error", resErr)
	}
	if a.Metrics != nil {
		a.Metrics.RecordIndexRebuild("api", lexErr)
		a.Metrics.RecordIndexRebuild("api", resErr)
	}
	a.Logger.Info("indexes_rebuilt",
		"reason", reason,
		"lexical_docs", a.lexical.Size(),
		"known_schemes", len(a.resolver.Schemes()),
	)
}

// RunReindexListener blocks on the reindex subject until ctx is cancelled.
// It is a no-op when NATS is not configured.
func (a *App) RunReindexListener(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.SubscribeReindexRequested(ctx, func(ctx context.Context, reason string) error {
		a.RebuildIndexes(ctx, reason)
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
