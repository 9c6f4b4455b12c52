package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// QueryExpander produces query variants for multi-query retrieval.
// Variant 0 is always the unmodified original, so expansion failure
// degrades the request instead of blocking it.
type QueryExpander struct {
	generator   ports.VariantGenerator
	maxVariants int
	timeout     time.Duration
}

func NewQueryExpander(generator ports.VariantGenerator, maxVariants int, timeout time.Duration) *QueryExpander {
	if maxVariants <= 0 {
		maxVariants = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QueryExpander{
		generator:   generator,
		maxVariants: maxVariants,
		timeout:     timeout,
	}
}

// Expand returns at least [question]. The second return value reports
// whether expansion degraded to the original query only.
func (e *QueryExpander) Expand(ctx context.Context, question string, conv domain.ConversationContext) ([]string, bool) {
	variants := []string{question}
	if e.generator == nil || e.maxVariants <= 1 {
		return variants, false
	}

	expandCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	generated, err := e.generator.GenerateVariants(expandCtx, question, conv.Exchanges, e.maxVariants-1)
	if err != nil {
		slog.Warn("query_expansion_degraded", "error", err)
		return variants, true
	}

	seen := map[string]struct{}{normalizeVariant(question): {}}
	for _, v := range generated {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := normalizeVariant(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
		if len(variants) >= e.maxVariants {
			break
		}
	}
	return variants, false
}

func normalizeVariant(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
