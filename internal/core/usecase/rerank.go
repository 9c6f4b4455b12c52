package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// Reranker re-scores fused candidates against the original query with a
// pluggable provider. Provider failure degrades to the fused order.
type Reranker struct {
	provider ports.RerankProvider
	timeout  time.Duration
	minScore float64
}

func NewReranker(provider ports.RerankProvider, timeout time.Duration, minScore float64) *Reranker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reranker{provider: provider, timeout: timeout, minScore: minScore}
}

// Rerank returns exactly min(topK, len(fused)) results with a strict
// total order. The bool reports an unreranked (passthrough) result. When
// a minimum score is configured, scored results below it are dropped
// after the size rule is applied.
func (r *Reranker) Rerank(ctx context.Context, question string, fused []domain.FusedResult, topK int) ([]domain.RerankedResult, bool) {
	if len(fused) == 0 {
		return nil, false
	}
	if topK <= 0 || topK > len(fused) {
		topK = len(fused)
	}

	if r.provider == nil {
		return passthrough(fused, topK), true
	}

	docs := make([]string, len(fused))
	for i, f := range fused {
		docs[i] = f.Text
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	scores, err := r.provider.Score(scoreCtx, question, docs)
	if err != nil || len(scores) != len(fused) {
		slog.Warn("rerank_degraded", "provider", r.provider.Name(), "error", err)
		return passthrough(fused, topK), true
	}

	scored := make([]domain.RerankedResult, len(fused))
	for i, f := range fused {
		scored[i] = domain.RerankedResult{
			ID:          f.ID,
			Text:        f.Text,
			Source:      f.Source,
			RerankScore: scores[i],
			FusedRank:   i + 1,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RerankScore != scored[j].RerankScore {
			return scored[i].RerankScore > scored[j].RerankScore
		}
		// The fused rank already encodes the fusion tie-break, which
		// ends on candidate ID, so this keeps the order total.
		return scored[i].FusedRank < scored[j].FusedRank
	})

	scored = scored[:topK]
	if r.minScore > 0 {
		kept := scored[:0]
		for _, s := range scored {
			if s.RerankScore >= r.minScore {
				kept = append(kept, s)
			}
		}
		if len(kept) > 0 {
			scored = kept
		}
	}
	for i := range scored {
		scored[i].FinalRank = i + 1
	}
	return scored, false
}

func passthrough(fused []domain.FusedResult, topK int) []domain.RerankedResult {
	out := make([]domain.RerankedResult, topK)
	for i := 0; i < topK; i++ {
		out[i] = domain.RerankedResult{
			ID:          fused[i].ID,
			Text:        fused[i].Text,
			Source:      fused[i].Source,
			RerankScore: fused[i].Score,
			FusedRank:   i + 1,
			FinalRank:   i + 1,
		}
	}
	return out
}
