package ports

import (
	"context"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// VectorSearcher queries the external vector store. Both calls are
// opaque from the pipeline's perspective; dense embedding happens behind
// DenseSearch.
type VectorSearcher interface {
	DenseSearch(ctx context.Context, query string, topN int) ([]domain.Candidate, error)
	SparseSearch(ctx context.Context, query string, topN int) ([]domain.Candidate, error)
}

// Embedder builds vectors for query and candidate text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VariantGenerator produces semantically equivalent rewrites of a query.
// The original query is not expected in the output; the expander always
// prepends it.
type VariantGenerator interface {
	GenerateVariants(ctx context.Context, query string, history []domain.Exchange, maxVariants int) ([]string, error)
}

// RerankProvider batch-scores candidate texts against the original
// query. Scores are provider-local; only their relative order matters.
type RerankProvider interface {
	Name() string
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// GenerationProvider produces the final answer from the query and the
// reranked evidence. Errors must be classified with domain.ErrTemporary
// (retryable) or domain.ErrRejected (fatal) before crossing this port.
type GenerationProvider interface {
	Name() string
	Generate(ctx context.Context, question string, history []domain.Exchange, evidence []domain.RerankedResult) (domain.Generation, error)
}

// PromptGenerator runs a raw prompt; used by the LLM-judge reranker and
// the variant generator implementations.
type PromptGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ConversationStore persists exchanges and serves bounded history.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, conversationID string) error
	RecentExchanges(ctx context.Context, conversationID string, limit int) ([]domain.Exchange, error)
	AppendExchange(ctx context.Context, ex domain.Exchange) error
}

// EventPublisher emits answer-completed events; best-effort only.
type EventPublisher interface {
	PublishAnswerCompleted(ctx context.Context, event domain.AnswerEvent) error
}
