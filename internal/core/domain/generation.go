package domain

import "time"

// AttemptOutcome classifies a single provider call.
type AttemptOutcome string

const (
	AttemptSuccess   AttemptOutcome = "success"
	AttemptRetryable AttemptOutcome = "retryable-error"
	AttemptFatal     AttemptOutcome = "fatal-error"
)

// GenerationAttempt records one provider call for observability. Cost is
// an estimate (tokens x configured provider rate), never a routing input.
type GenerationAttempt struct {
	Provider         string         `json:"provider"`
	Latency          time.Duration  `json:"latency"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	EstimatedCost    float64        `json:"estimated_cost"`
	Outcome          AttemptOutcome `json:"outcome"`
}

// Generation is a successful provider response.
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// AnswerEvent is published after every answered request so downstream
// consumers can track degradations and spend without scraping logs.
type AnswerEvent struct {
	RequestID      string           `json:"request_id"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Question       string           `json:"question"`
	Provider       string           `json:"provider"`
	Flags          DegradationFlags `json:"flags"`
	EvidenceCount  int              `json:"evidence_count"`
	LatencyMS      float64          `json:"latency_ms"`
	EstimatedCost  float64          `json:"estimated_cost"`
	CreatedAt      time.Time        `json:"created_at"`
}
