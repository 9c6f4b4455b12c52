package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Provider implements ports.GenerationProvider on the OpenAI chat
// completions API.
type Provider struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func New(baseURL, apiKey, model string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   1024,
		temperature: 0.2,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Name() string { return providerName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, question string, history []domain.Exchange, evidence []domain.RerankedResult) (domain.Generation, error) {
	reqBody := chatRequest{
		Model:       p.model,
		Messages:    buildMessages(question, history, evidence),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Generation{}, classifyTransportError("openai generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Generation{}, classifyStatusError("openai generate", resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return domain.Generation{}, domain.WrapError(domain.ErrTemporary, "openai generate", fmt.Errorf("decode response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return domain.Generation{}, domain.WrapError(domain.ErrTemporary, "openai generate", errors.New("no completion returned"))
	}

	return domain.Generation{
		Text:             strings.TrimSpace(chatResp.Choices[0].Message.Content),
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

func buildMessages(question string, history []domain.Exchange, evidence []domain.RerankedResult) []chatMessage {
	messages := make([]chatMessage, 0, 2+2*len(history)+1)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	if len(evidence) > 0 {
		messages = append(messages, chatMessage{Role: "system", Content: formatEvidence(evidence)})
	}
	for _, ex := range history {
		messages = append(messages,
			chatMessage{Role: "user", Content: ex.Question},
			chatMessage{Role: "assistant", Content: ex.Answer},
		)
	}
	return append(messages, chatMessage{Role: "user", Content: question})
}

const systemPrompt = "Answer the user question only from the provided context documents. " +
	"If the context is insufficient, say it directly."

func formatEvidence(evidence []domain.RerankedResult) string {
	var b strings.Builder
	b.WriteString("Context documents:\n")
	for _, ev := range evidence {
		fmt.Fprintf(&b, "[%d] source=%s\n%s\n\n", ev.FinalRank, ev.Source, ev.Text)
	}
	return b.String()
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func classifyStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	wrapped := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	if isRetryableHTTPStatus(resp.StatusCode) {
		return domain.WrapError(domain.ErrTemporary, operation, wrapped)
	}
	return domain.WrapError(domain.ErrRejected, operation, wrapped)
}

func classifyTransportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
