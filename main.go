package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/careline-tw/careline/engine/analyzer"
	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/flex"
	"github.com/careline-tw/careline/engine/infra/server"
	"github.com/careline-tw/careline/engine/knowledge"
	"github.com/careline-tw/careline/engine/knowledge/retriever"
	"github.com/careline-tw/careline/engine/line"
	"github.com/careline-tw/careline/engine/llm"
	"github.com/careline-tw/careline/engine/pipeline"
	"github.com/careline-tw/careline/engine/router"
	"github.com/careline-tw/careline/pkg/config"
	"github.com/careline-tw/careline/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine in production; the platform injects env vars.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(&logger.Config{
		Level: logger.LogLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	ctx = logger.ContextWithLogger(ctx, log)

	store, err := knowledge.LoadStore(cfg.Knowledge.CorpusPath)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	log.Info("corpus loaded", "chunks", store.Len(), "path", cfg.Knowledge.CorpusPath)

	vocab, err := router.LoadVocabulary(cfg.Knowledge.TriggersPath)
	if err != nil {
		return fmt.Errorf("load trigger vocabulary: %w", err)
	}

	scorer, err := buildScorer(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("build retriever: %w", err)
	}
	retrieval, err := retriever.NewService(store, scorer, cfg.Retriever.TopK)
	if err != nil {
		return fmt.Errorf("build retriever: %w", err)
	}

	client, err := llm.NewClient(ctx, &cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}
	gateway := llm.NewGateway(client, cfg.LLM.Provider, cfg.LLM.Timeout())

	analyzers := make(map[core.ModuleID]*analyzer.Analyzer, len(core.AllModules))
	for _, id := range core.AllModules {
		a, err := analyzer.New(id, gateway, store)
		if err != nil {
			return fmt.Errorf("build analyzer %s: %w", id, err)
		}
		analyzers[id] = a
	}

	p, err := pipeline.New(router.New(vocab), retrieval, analyzers, flex.NewBuilder(cfg.Detail.BaseURL))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	verifier, err := line.NewVerifier(cfg.Line.ChannelSecret)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}
	replier, err := line.NewClient(cfg.Line.APIBaseURL, cfg.Line.ChannelAccessToken)
	if err != nil {
		return fmt.Errorf("build reply client: %w", err)
	}

	srv, err := server.New(cfg, log, p, verifier, replier, store)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	log.Info("starting careline",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.DefaultModel(),
		"retriever", cfg.Retriever.Variant)
	return srv.Run(ctx)
}

func buildScorer(ctx context.Context, cfg *config.Config, store *knowledge.Store) (retriever.Scorer, error) {
	switch cfg.Retriever.Variant {
	case config.RetrieverEmbedding:
		embedder, err := llm.NewEmbedder(ctx, &cfg.LLM)
		if err != nil {
			return nil, err
		}
		// The corpus ships without vectors; index before serving.
		if err := retriever.IndexEmbeddings(ctx, embedder, store); err != nil {
			return nil, err
		}
		return retriever.NewEmbeddingScorer(embedder)
	default:
		return retriever.NewKeywordScorer(), nil
	}
}
