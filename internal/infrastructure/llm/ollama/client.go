package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

const providerName = "ollama"

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, classifyError("embed", err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator implements ports.GenerationProvider on the local Ollama
// generate API.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Name() string { return providerName }

func (g *Generator) Generate(ctx context.Context, question string, history []domain.Exchange, evidence []domain.RerankedResult) (domain.Generation, error) {
	prompt := buildAnswerPrompt(question, history, evidence)
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return domain.Generation{}, classifyError("ollama generate", err)
	}
	return domain.Generation{
		Text:             strings.TrimSpace(response.Response),
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}, nil
}

// VariantGenerator implements ports.VariantGenerator with a JSON-mode
// rewrite prompt.
type VariantGenerator struct {
	client *Client
}

func NewVariantGenerator(client *Client) *VariantGenerator {
	return &VariantGenerator{client: client}
}

func (v *VariantGenerator) GenerateVariants(ctx context.Context, query string, history []domain.Exchange, maxVariants int) ([]string, error) {
	raw, err := v.client.generateJSON(ctx, buildVariantsPrompt(query, history, maxVariants))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Variants []string `json:"variants"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse variants json: %w", err)
	}
	return parsed.Variants, nil
}

// PromptRunner implements ports.PromptGenerator for callers that bring
// their own prompt, such as the LLM-judge reranker.
type PromptRunner struct {
	client *Client
}

func NewPromptRunner(client *Client) *PromptRunner {
	return &PromptRunner{client: client}
}

func (p *PromptRunner) GenerateText(ctx context.Context, prompt string) (string, error) {
	return p.client.generateText(ctx, prompt)
}

func (p *PromptRunner) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return p.client.generateJSON(ctx, prompt)
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", classifyError("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
