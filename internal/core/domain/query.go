package domain

import "time"

// Channel identifies which retrieval signal produced a candidate.
type Channel string

const (
	ChannelDense  Channel = "dense"
	ChannelSparse Channel = "sparse"
)

// Exchange is one completed question/answer turn of a conversation.
type Exchange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationContext is an immutable snapshot of the recent history.
// It is passed by value into the pipeline and never mutated in place.
type ConversationContext struct {
	ConversationID string
	Exchanges      []Exchange
}

// Candidate is a single retrieved chunk from one channel's result list.
// ID is opaque and stable; the same ID appearing in both channels is the
// same logical candidate.
type Candidate struct {
	ID      string
	Text    string
	Source  string
	Channel Channel
	Score   float64 // channel-local scale, not comparable across channels
	Rank    int     // 1-based rank within its channel result list
	Variant int     // index of the query variant that produced it
}

// ChannelResults holds both channel lists for one query variant.
type ChannelResults struct {
	Dense  []Candidate
	Sparse []Candidate
}

// Contribution records one (variant, channel, rank) appearance of a
// candidate, kept for explainability and tie-breaking.
type Contribution struct {
	Variant int     `json:"variant"`
	Channel Channel `json:"channel"`
	Rank    int     `json:"rank"`
}

// FusedResult is a candidate after reciprocal rank fusion. Scores are
// comparable across all candidates.
type FusedResult struct {
	ID            string
	Text          string
	Source        string
	Score         float64
	Contributions []Contribution
}

// RerankedResult is the final evidence item. FinalRank is the
// authoritative ordering for generation.
type RerankedResult struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Source      string  `json:"source,omitempty"`
	RerankScore float64 `json:"score"`
	FusedRank   int     `json:"fused_rank"`
	FinalRank   int     `json:"final_rank"`
}

// DegradationFlags reports which pipeline stages fell back to a reduced
// path. Degraded stages never abort the request.
type DegradationFlags struct {
	ExpansionDegraded bool `json:"expansion_degraded"`
	PartialRetrieval  bool `json:"partial_retrieval"`
	Unreranked        bool `json:"unreranked"`
	FallbackProvider  bool `json:"fallback_provider"`
}

func (f DegradationFlags) Any() bool {
	return f.ExpansionDegraded || f.PartialRetrieval || f.Unreranked || f.FallbackProvider
}

// AskRequest is the inbound request for the answer pipeline.
type AskRequest struct {
	Question       string
	ConversationID string
	TopK           int
}

// Answer is the upward contract of the pipeline.
type Answer struct {
	Text     string              `json:"text"`
	Evidence []RerankedResult    `json:"evidence"`
	Flags    DegradationFlags    `json:"flags"`
	Provider string              `json:"provider"`
	Attempts []GenerationAttempt `json:"attempts,omitempty"`
	Variants int                 `json:"variants"`
	Fused    int                 `json:"fused_candidates"`
}
