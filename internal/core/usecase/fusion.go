package usecase

import (
	"sort"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// FusionConfig holds the weighted reciprocal rank fusion parameters.
type FusionConfig struct {
	K            int
	DenseWeight  float64
	SparseWeight float64
	Limit        int
}

func (c FusionConfig) normalize() FusionConfig {
	if c.K <= 0 {
		c.K = 60
	}
	if c.DenseWeight <= 0 && c.SparseWeight <= 0 {
		c.DenseWeight = 0.6
		c.SparseWeight = 0.4
	}
	return c
}

type fusedAccumulator struct {
	text          string
	source        string
	score         float64
	contributions []domain.Contribution
}

// FuseVariants merges every (variant, channel) candidate list into one
// comparable ranking. A candidate at 1-based rank r contributes
// weight/(k+r) from that list; contributions are summed over every list
// the candidate appears in. Aggregation walks variants in order and
// dense before sparse, so the result is independent of goroutine
// completion order upstream.
func FuseVariants(perVariant []domain.ChannelResults, cfg FusionConfig) []domain.FusedResult {
	cfg = cfg.normalize()

	acc := make(map[string]*fusedAccumulator)
	order := make([]string, 0, 64)

	addList := func(candidates []domain.Candidate, weight float64) {
		for _, c := range candidates {
			entry, ok := acc[c.ID]
			if !ok {
				entry = &fusedAccumulator{}
				acc[c.ID] = entry
				order = append(order, c.ID)
			}
			if entry.text == "" {
				entry.text = c.Text
			}
			if entry.source == "" {
				entry.source = c.Source
			}
			entry.score += weight / float64(cfg.K+c.Rank)
			entry.contributions = append(entry.contributions, domain.Contribution{
				Variant: c.Variant,
				Channel: c.Channel,
				Rank:    c.Rank,
			})
		}
	}

	for _, variant := range perVariant {
		addList(variant.Dense, cfg.DenseWeight)
		addList(variant.Sparse, cfg.SparseWeight)
	}

	out := make([]domain.FusedResult, 0, len(order))
	for _, id := range order {
		entry := acc[id]
		out = append(out, domain.FusedResult{
			ID:            id,
			Text:          entry.text,
			Source:        entry.source,
			Score:         entry.score,
			Contributions: entry.contributions,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// Equal scores: reward broader multi-signal agreement first,
		// then fall back to the candidate ID for a total order.
		if len(out[i].Contributions) != len(out[j].Contributions) {
			return len(out[i].Contributions) > len(out[j].Contributions)
		}
		return out[i].ID < out[j].ID
	})

	if cfg.Limit > 0 && len(out) > cfg.Limit {
		out = out[:cfg.Limit]
	}
	return out
}
