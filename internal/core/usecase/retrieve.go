package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// DualRetriever fans out dense and sparse searches per query variant.
// A single channel fault degrades that variant to the surviving channel;
// the request fails only when every variant yields nothing and at least
// one channel call errored.
type DualRetriever struct {
	store   ports.VectorSearcher
	timeout time.Duration
}

func NewDualRetriever(store ports.VectorSearcher, timeout time.Duration) *DualRetriever {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DualRetriever{store: store, timeout: timeout}
}

type channelOutcome struct {
	candidates []domain.Candidate
	err        error
}

// Retrieve returns per-variant channel results indexed by variant. The
// bool reports partial (single-channel or lost-variant) retrieval.
func (r *DualRetriever) Retrieve(ctx context.Context, variants []string, topN int) ([]domain.ChannelResults, bool, error) {
	if topN <= 0 {
		topN = 20
	}

	results := make([]domain.ChannelResults, len(variants))
	errCounts := make([]int, len(variants))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, variant := range variants {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()

			variantCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			denseCh := make(chan channelOutcome, 1)
			sparseCh := make(chan channelOutcome, 1)
			go func() {
				candidates, err := r.store.DenseSearch(variantCtx, query, topN)
				denseCh <- channelOutcome{candidates: candidates, err: err}
			}()
			go func() {
				candidates, err := r.store.SparseSearch(variantCtx, query, topN)
				sparseCh <- channelOutcome{candidates: candidates, err: err}
			}()
			dense := <-denseCh
			sparse := <-sparseCh

			var res domain.ChannelResults
			failed := 0
			if dense.err != nil {
				failed++
				slog.Warn("dense_channel_degraded", "variant", idx, "error", dense.err)
			} else {
				res.Dense = annotate(dense.candidates, domain.ChannelDense, idx, topN)
			}
			if sparse.err != nil {
				failed++
				slog.Warn("sparse_channel_degraded", "variant", idx, "error", sparse.err)
			} else {
				res.Sparse = annotate(sparse.candidates, domain.ChannelSparse, idx, topN)
			}

			mu.Lock()
			results[idx] = res
			errCounts[idx] = failed
			mu.Unlock()
		}(i, variant)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	partial := false
	anyCandidates := false
	anyError := false
	for i := range results {
		if errCounts[i] > 0 {
			partial = true
			anyError = true
		}
		if len(results[i].Dense) > 0 || len(results[i].Sparse) > 0 {
			anyCandidates = true
		}
	}
	if !anyCandidates && anyError {
		return nil, false, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", nil)
	}
	return results, partial, nil
}

// annotate stamps channel, 1-based rank, and variant index onto the
// store's rank-ordered list, truncating to topN.
func annotate(candidates []domain.Candidate, channel domain.Channel, variant, topN int) []domain.Candidate {
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	out := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		c.Channel = channel
		c.Rank = i + 1
		c.Variant = variant
		out[i] = c
	}
	return out
}
