package anthropic

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
	providerName     = "anthropic"
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-3-5-haiku-latest"
	anthropicVersion = "2023-06-01"
)

// Provider implements ports.GenerationProvider on the Anthropic messages
// API. The system prompt travels in the dedicated system field; history
// becomes alternating user/assistant turns.
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, question string, history []domain.Exchange, evidence []domain.RerankedResult) (domain.Generation, error) {
	messages := make([]message, 0, 2*len(history)+1)
	for _, ex := range history {
		messages = append(messages,
			message{Role: "user", Content: ex.Question},
			message{Role: "assistant", Content: ex.Answer},
		)
	}
	messages = append(messages, message{Role: "user", Content: question})

	reqBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      buildSystem(evidence),
		Messages:    messages,
		Temperature: p.temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("marshal messages request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("create messages request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Generation{}, classifyTransportError("anthropic generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Generation{}, classifyStatusError("anthropic generate", resp)
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return domain.Generation{}, domain.WrapError(domain.ErrTemporary, "anthropic generate", fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, c := range msgResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return domain.Generation{
		Text:             strings.TrimSpace(text.String()),
		PromptTokens:     msgResp.Usage.InputTokens,
		CompletionTokens: msgResp.Usage.OutputTokens,
	}, nil
}

func buildSystem(evidence []domain.RerankedResult) string {
	var b strings.Builder
	b.WriteString("Answer the user question only from the provided context documents. ")
	b.WriteString("If the context is insufficient, say it directly.")
	if len(evidence) > 0 {
		b.WriteString("\n\nContext documents:\n")
		for _, ev := range evidence {
			fmt.Fprintf(&b, "[%d] source=%s\n%s\n\n", ev.FinalRank, ev.Source, ev.Text)
		}
	}
	return b.String()
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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

// Anthropic reports overload as 529 next to the standard retryable codes.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	default:
		return false
	}
}
