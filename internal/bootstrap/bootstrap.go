package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/antonkh/knowledge-qa/internal/config"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
	"github.com/antonkh/knowledge-qa/internal/core/usecase"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/llm/anthropic"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/llm/ollama"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/llm/openai"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/queue/nats"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/repository/postgres"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/rerank/crossencoder"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/rerank/jina"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/rerank/llmjudge"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/resilience"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/vector/qdrant"
	"github.com/antonkh/knowledge-qa/internal/observability/metrics"
)

const (
	expandTimeout   = 10 * time.Second
	retrieveTimeout = 15 * time.Second
	rerankTimeout   = 10 * time.Second
)

type App struct {
	Config  config.Config
	Metrics *metrics.Metrics

	AnswerUC ports.AnswerService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conversations := postgres.NewConversationRepository(db)
	if err := conversations.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)

	expander := usecase.NewQueryExpander(ollama.NewVariantGenerator(ollamaClient), cfg.MaxVariants, expandTimeout)
	retriever := usecase.NewDualRetriever(vectorDB, retrieveTimeout)

	rerankProvider, err := buildRerankProvider(cfg, embedder, ollamaClient)
	if err != nil {
		return nil, err
	}
	reranker := usecase.NewReranker(rerankProvider, rerankTimeout, cfg.RerankMinScore)

	providers, rates, err := buildGenerationChain(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}
	health := resilience.NewHealthTracker(resilience.HealthConfig{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		Cooldown:         time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
	})
	retry := resilience.RetryPolicy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		Multiplier:     cfg.RetryMultiplier,
	}
	orchestrator := usecase.NewGenerationOrchestrator(
		providers,
		health,
		retry,
		rates,
		time.Duration(cfg.GenerationTimeoutSeconds)*time.Second,
	)

	m := metrics.New("api")

	answerUC := usecase.NewAnswerUseCase(
		expander,
		retriever,
		reranker,
		orchestrator,
		conversations,
		publisher,
		m,
		usecase.AnswerConfig{
			TopN:         cfg.RetrievalTopN,
			DefaultTopK:  cfg.AnswerTopK,
			HistoryLimit: cfg.HistoryLimit,
			Fusion: usecase.FusionConfig{
				K:            cfg.FusionK,
				DenseWeight:  cfg.FusionDenseWeight,
				SparseWeight: cfg.FusionSparseWeight,
				Limit:        cfg.FusionLimit,
			},
		},
	)

	return &App{
		Config:   cfg,
		Metrics:  m,
		AnswerUC: answerUC,

		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func buildRerankProvider(cfg config.Config, embedder *ollama.Embedder, client *ollama.Client) (ports.RerankProvider, error) {
	switch cfg.RerankProvider {
	case "crossencoder":
		return crossencoder.New(embedder), nil
	case "llmjudge":
		return llmjudge.New(ollama.NewPromptRunner(client)), nil
	case "jina":
		return jina.New(cfg.JinaBaseURL, cfg.JinaAPIKey, cfg.JinaModel), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.RerankProvider)
	}
}

func buildGenerationChain(cfg config.Config, client *ollama.Client) ([]ports.GenerationProvider, usecase.ProviderRates, error) {
	chain := cfg.ProviderChain()
	providers := make([]ports.GenerationProvider, 0, len(chain))
	rates := usecase.ProviderRates{}
	for _, name := range chain {
		switch name {
		case "ollama":
			providers = append(providers, ollama.NewGenerator(client))
			rates[name] = cfg.OllamaCostPer1K
		case "openai":
			providers = append(providers, openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel))
			rates[name] = cfg.OpenAICostPer1K
		case "anthropic":
			providers = append(providers, anthropic.New(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel))
			rates[name] = cfg.AnthropicCostPer1K
		default:
			return nil, nil, fmt.Errorf("unknown generation provider %q", name)
		}
	}
	return providers, rates, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
