package crossencoder

import (
	"context"
	"fmt"
	"math"

	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// Provider scores documents by cosine similarity between the query
// embedding and each document embedding. It is the cheap local default:
// no extra service beyond the embedding model already used for dense
// retrieval.
type Provider struct {
	embedder ports.Embedder
}

func New(embedder ports.Embedder) *Provider {
	return &Provider{embedder: embedder}
}

func (p *Provider) Name() string { return "crossencoder" }

func (p *Provider) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	queryVec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docVecs, err := p.embedder.Embed(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(docVecs) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: %d docs, %d vectors", len(docs), len(docVecs))
	}

	scores := make([]float64, len(docs))
	for i, vec := range docVecs {
		scores[i] = cosine(queryVec, vec)
	}
	return scores, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
