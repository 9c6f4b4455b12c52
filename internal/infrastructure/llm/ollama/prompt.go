package ollama

import (
	"fmt"
	"strings"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

func buildAnswerPrompt(question string, history []domain.Exchange, evidence []domain.RerankedResult) string {
	var b strings.Builder
	b.WriteString("Answer the user question only from the context below.\n")
	b.WriteString("If the context is insufficient, say it directly.\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context:\n")
	for _, ev := range evidence {
		fmt.Fprintf(&b, "[%d] source=%s score=%.3f\n%s\n\n", ev.FinalRank, ev.Source, ev.RerankScore, ev.Text)
	}

	fmt.Fprintf(&b, "Question:\n%s\n", question)
	return b.String()
}

func buildVariantsPrompt(query string, history []domain.Exchange, maxVariants int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the search query below into up to %d alternative phrasings\n", maxVariants)
	b.WriteString("that preserve its meaning. Resolve pronouns and references using the\n")
	b.WriteString("conversation when present. Return a strict JSON object of the form\n")
	b.WriteString(`{"variants": ["..."]} with no markdown and no extra keys.` + "\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Query:\n%s\n", query)
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
