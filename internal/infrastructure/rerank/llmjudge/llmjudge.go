package llmjudge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antonkh/knowledge-qa/internal/core/ports"
)

// Provider asks a generation model to judge document relevance and
// parses a strict JSON verdict. Any malformed or incomplete verdict is
// an error; the caller degrades to the fused order.
type Provider struct {
	runner ports.PromptGenerator
}

func New(runner ports.PromptGenerator) *Provider {
	return &Provider{runner: runner}
}

func (p *Provider) Name() string { return "llmjudge" }

type verdict struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func (p *Provider) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	raw, err := p.runner.GenerateJSON(ctx, buildJudgePrompt(query, docs))
	if err != nil {
		return nil, err
	}

	var v verdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &v); err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range v.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("judge verdict index %d out of range", r.Index)
		}
		scores[r.Index] = clamp01(r.Score)
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("judge verdict missing document %d", i)
		}
	}
	return scores, nil
}

func buildJudgePrompt(query string, docs []string) string {
	var b strings.Builder
	b.WriteString("Rate how relevant each document is to the query on a scale from 0 to 1.\n")
	b.WriteString(`Return a strict JSON object of the form {"results":[{"index":0,"score":0.0}]}`)
	b.WriteString(" with one entry per document, no markdown, no extra keys.\n\n")
	fmt.Fprintf(&b, "Query:\n%s\n\nDocuments:\n", query)
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n\n", i, doc)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
