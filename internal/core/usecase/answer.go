package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// PipelineMetrics receives per-request pipeline observations. A nil
// implementation disables instrumentation.
type PipelineMetrics interface {
	ObserveStage(stage string, d time.Duration)
	IncDegradation(kind string)
	ObserveAttempt(provider string, outcome domain.AttemptOutcome)
	AddCost(provider string, cost float64)
}

// AnswerConfig bounds the pipeline stages.
type AnswerConfig struct {
	// TopN is the per-channel retrieval depth for each query variant.
	TopN int
	// DefaultTopK is the evidence size when the request does not set one.
	DefaultTopK int
	// HistoryLimit caps the conversation exchanges loaded per request.
	HistoryLimit int
	Fusion       FusionConfig
}

func (c AnswerConfig) normalize() AnswerConfig {
	if c.TopN <= 0 {
		c.TopN = 20
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 6
	}
	return c
}

// AnswerUseCase runs the full question pipeline: expand, retrieve, fuse,
// rerank, generate. Conversation persistence and event publishing are
// best-effort and never fail a request that produced an answer.
type AnswerUseCase struct {
	expander      *QueryExpander
	retriever     *DualRetriever
	reranker      *Reranker
	orchestrator  *GenerationOrchestrator
	conversations ports.ConversationStore
	events        ports.EventPublisher
	metrics       PipelineMetrics
	cfg           AnswerConfig
}

func NewAnswerUseCase(
	expander *QueryExpander,
	retriever *DualRetriever,
	reranker *Reranker,
	orchestrator *GenerationOrchestrator,
	conversations ports.ConversationStore,
	events ports.EventPublisher,
	metrics PipelineMetrics,
	cfg AnswerConfig,
) *AnswerUseCase {
	return &AnswerUseCase{
		expander:      expander,
		retriever:     retriever,
		reranker:      reranker,
		orchestrator:  orchestrator,
		conversations: conversations,
		events:        events,
		metrics:       metrics,
		cfg:           cfg.normalize(),
	}
}

func (u *AnswerUseCase) Answer(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", nil)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = u.cfg.DefaultTopK
	}

	requestID := uuid.NewString()
	started := time.Now()
	log := slog.With("request_id", requestID)

	conv := u.loadConversation(ctx, log, req.ConversationID)

	var flags domain.DegradationFlags

	stageStart := time.Now()
	variants, expansionDegraded := u.expander.Expand(ctx, question, conv)
	u.observeStage("expand", stageStart)
	flags.ExpansionDegraded = expansionDegraded

	stageStart = time.Now()
	perVariant, partial, err := u.retriever.Retrieve(ctx, variants, u.cfg.TopN)
	u.observeStage("retrieve", stageStart)
	if err != nil {
		return nil, err
	}
	flags.PartialRetrieval = partial

	stageStart = time.Now()
	fused := FuseVariants(perVariant, u.cfg.Fusion)
	u.observeStage("fuse", stageStart)

	stageStart = time.Now()
	evidence, unreranked := u.reranker.Rerank(ctx, question, fused, topK)
	u.observeStage("rerank", stageStart)
	flags.Unreranked = unreranked

	stageStart = time.Now()
	gen, err := u.orchestrator.Generate(ctx, question, conv.Exchanges, evidence)
	u.observeStage("generate", stageStart)
	if err != nil {
		u.observeAttempts(nil, err)
		return nil, err
	}
	flags.FallbackProvider = gen.Fallback
	u.observeAttempts(gen.Attempts, nil)
	u.observeDegradations(flags)

	answer := &domain.Answer{
		Text:     gen.Text,
		Evidence: evidence,
		Flags:    flags,
		Provider: gen.Provider,
		Attempts: gen.Attempts,
		Variants: len(variants),
		Fused:    len(fused),
	}

	u.persistExchange(ctx, log, req.ConversationID, question, answer.Text)
	u.publishEvent(ctx, log, domain.AnswerEvent{
		RequestID:      requestID,
		ConversationID: req.ConversationID,
		Question:       question,
		Provider:       answer.Provider,
		Flags:          flags,
		EvidenceCount:  len(evidence),
		LatencyMS:      float64(time.Since(started).Microseconds()) / 1000.0,
		EstimatedCost:  totalCost(gen.Attempts),
		CreatedAt:      time.Now().UTC(),
	})

	log.Info("answer_completed",
		"provider", answer.Provider,
		"variants", answer.Variants,
		"evidence", len(evidence),
		"degraded", flags.Any(),
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)
	return answer, nil
}

func (u *AnswerUseCase) loadConversation(ctx context.Context, log *slog.Logger, conversationID string) domain.ConversationContext {
	conv := domain.ConversationContext{ConversationID: conversationID}
	if conversationID == "" || u.conversations == nil {
		return conv
	}
	if err := u.conversations.EnsureConversation(ctx, conversationID); err != nil {
		log.Warn("conversation_unavailable", "conversation_id", conversationID, "error", err)
		return conv
	}
	exchanges, err := u.conversations.RecentExchanges(ctx, conversationID, u.cfg.HistoryLimit)
	if err != nil {
		log.Warn("conversation_history_unavailable", "conversation_id", conversationID, "error", err)
		return conv
	}
	conv.Exchanges = exchanges
	return conv
}

func (u *AnswerUseCase) persistExchange(ctx context.Context, log *slog.Logger, conversationID, question, answer string) {
	if conversationID == "" || u.conversations == nil {
		return
	}
	ex := domain.Exchange{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Question:       question,
		Answer:         answer,
		CreatedAt:      time.Now().UTC(),
	}
	if err := u.conversations.AppendExchange(ctx, ex); err != nil {
		log.Warn("exchange_persist_failed", "conversation_id", conversationID, "error", err)
	}
}

func (u *AnswerUseCase) publishEvent(ctx context.Context, log *slog.Logger, event domain.AnswerEvent) {
	if u.events == nil {
		return
	}
	if err := u.events.PublishAnswerCompleted(ctx, event); err != nil {
		log.Warn("answer_event_publish_failed", "error", err)
	}
}

func (u *AnswerUseCase) observeStage(stage string, start time.Time) {
	if u.metrics == nil {
		return
	}
	u.metrics.ObserveStage(stage, time.Since(start))
}

func (u *AnswerUseCase) observeAttempts(attempts []domain.GenerationAttempt, genErr error) {
	if u.metrics == nil {
		return
	}
	for _, a := range attempts {
		u.metrics.ObserveAttempt(a.Provider, a.Outcome)
		if a.EstimatedCost > 0 {
			u.metrics.AddCost(a.Provider, a.EstimatedCost)
		}
	}
	if genErr != nil {
		u.metrics.IncDegradation("generation_failed")
	}
}

func (u *AnswerUseCase) observeDegradations(flags domain.DegradationFlags) {
	if u.metrics == nil {
		return
	}
	if flags.ExpansionDegraded {
		u.metrics.IncDegradation("expansion")
	}
	if flags.PartialRetrieval {
		u.metrics.IncDegradation("partial_retrieval")
	}
	if flags.Unreranked {
		u.metrics.IncDegradation("unreranked")
	}
	if flags.FallbackProvider {
		u.metrics.IncDegradation("fallback_provider")
	}
}

func totalCost(attempts []domain.GenerationAttempt) float64 {
	var total float64
	for _, a := range attempts {
		total += a.EstimatedCost
	}
	return total
}
