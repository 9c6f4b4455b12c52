package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/resilience"
)

type stubConversationStore struct {
	history    []domain.Exchange
	appended   []domain.Exchange
	ensureErr  error
	historyErr error
	appendErr  error
}

func (s *stubConversationStore) EnsureConversation(_ context.Context, _ string) error {
	return s.ensureErr
}

func (s *stubConversationStore) RecentExchanges(_ context.Context, _ string, _ int) ([]domain.Exchange, error) {
	return s.history, s.historyErr
}

func (s *stubConversationStore) AppendExchange(_ context.Context, ex domain.Exchange) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, ex)
	return nil
}

type stubEventPublisher struct {
	events []domain.AnswerEvent
	err    error
}

func (s *stubEventPublisher) PublishAnswerCompleted(_ context.Context, event domain.AnswerEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type recordingMetrics struct {
	stages       map[string]int
	degradations map[string]int
	attempts     int
	cost         float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{stages: map[string]int{}, degradations: map[string]int{}}
}

func (m *recordingMetrics) ObserveStage(stage string, _ time.Duration) { m.stages[stage]++ }
func (m *recordingMetrics) IncDegradation(kind string)                 { m.degradations[kind]++ }
func (m *recordingMetrics) ObserveAttempt(_ string, _ domain.AttemptOutcome) {
	m.attempts++
}
func (m *recordingMetrics) AddCost(_ string, cost float64) { m.cost += cost }

type answerFixture struct {
	store     *stubVectorSearcher
	variants  *stubVariantGenerator
	rerank    *stubRerankProvider
	providers []ports.GenerationProvider
	convs     *stubConversationStore
	events    *stubEventPublisher
	metrics   *recordingMetrics
}

func defaultAnswerFixture() *answerFixture {
	candidates := rawCandidates("A", "B", "C")
	queries := map[string][]domain.Candidate{
		"refund policy": candidates,
		"variant one":   candidates,
	}
	return &answerFixture{
		store:    &stubVectorSearcher{dense: queries, sparse: queries},
		variants: &stubVariantGenerator{variants: []string{"variant one"}},
		rerank:   &stubRerankProvider{scores: []float64{0.9, 0.8, 0.7}},
		providers: []ports.GenerationProvider{
			&scriptedProvider{name: "primary", gen: domain.Generation{Text: "the refund window is 30 days", PromptTokens: 100, CompletionTokens: 50}},
		},
		convs:   &stubConversationStore{},
		events:  &stubEventPublisher{},
		metrics: newRecordingMetrics(),
	}
}

func (f *answerFixture) build() *AnswerUseCase {
	health := resilience.NewHealthTracker(resilience.HealthConfig{FailureThreshold: 3, Cooldown: time.Minute})
	return NewAnswerUseCase(
		NewQueryExpander(f.variants, 3, time.Second),
		NewDualRetriever(f.store, time.Second),
		NewReranker(f.rerank, time.Second, 0),
		NewGenerationOrchestrator(f.providers, health, testRetryPolicy(), ProviderRates{"primary": 0.002}, time.Second),
		f.convs,
		f.events,
		f.metrics,
		AnswerConfig{TopN: 20, DefaultTopK: 3, HistoryLimit: 4},
	)
}

func TestAnswerFullPipeline(t *testing.T) {
	f := defaultAnswerFixture()
	u := f.build()

	answer, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy", ConversationID: "c-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != "the refund window is 30 days" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if answer.Flags.Any() {
		t.Fatalf("expected no degradations, got %+v", answer.Flags)
	}
	if answer.Variants != 2 {
		t.Fatalf("expected 2 query variants, got %d", answer.Variants)
	}
	if len(answer.Evidence) != 3 {
		t.Fatalf("expected 3 evidence items, got %d", len(answer.Evidence))
	}
	if answer.Evidence[0].FinalRank != 1 {
		t.Fatalf("expected final rank ordering, got %+v", answer.Evidence[0])
	}

	if len(f.convs.appended) != 1 || f.convs.appended[0].Answer != answer.Text {
		t.Fatalf("expected the exchange persisted, got %+v", f.convs.appended)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("expected one answer event, got %d", len(f.events.events))
	}
	event := f.events.events[0]
	if event.Provider != "primary" || event.EvidenceCount != 3 || event.RequestID == "" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.EstimatedCost <= 0 {
		t.Fatalf("expected a positive cost estimate, got %v", event.EstimatedCost)
	}

	for _, stage := range []string{"expand", "retrieve", "fuse", "rerank", "generate"} {
		if f.metrics.stages[stage] != 1 {
			t.Fatalf("expected stage %q observed once, got %d", stage, f.metrics.stages[stage])
		}
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	u := defaultAnswerFixture().build()

	_, err := u.Answer(context.Background(), domain.AskRequest{Question: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnswerExpansionFailureDegradesToSingleVariant(t *testing.T) {
	f := defaultAnswerFixture()
	f.variants.err = errors.New("expansion model offline")
	u := f.build()

	answer, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Flags.ExpansionDegraded {
		t.Fatal("expected expansion degradation flag")
	}
	if answer.Variants != 1 {
		t.Fatalf("expected a single variant, got %d", answer.Variants)
	}
	if f.metrics.degradations["expansion"] != 1 {
		t.Fatalf("expected expansion degradation recorded, got %+v", f.metrics.degradations)
	}
}

func TestAnswerRetrievalFailureAborts(t *testing.T) {
	f := defaultAnswerFixture()
	f.store.denseErr = errors.New("dense offline")
	f.store.sparseErr = errors.New("sparse offline")
	u := f.build()

	_, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy"})
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestAnswerRerankFailureDegrades(t *testing.T) {
	f := defaultAnswerFixture()
	f.rerank.err = errors.New("reranker offline")
	u := f.build()

	answer, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Flags.Unreranked {
		t.Fatal("expected unreranked flag")
	}
	if len(answer.Evidence) != 3 {
		t.Fatalf("expected fused-order evidence, got %d items", len(answer.Evidence))
	}
}

func TestAnswerFallbackProviderFlag(t *testing.T) {
	f := defaultAnswerFixture()
	f.providers = []ports.GenerationProvider{
		&scriptedProvider{name: "primary", errs: []error{temporaryErr(), temporaryErr()}},
		&scriptedProvider{name: "secondary", gen: domain.Generation{Text: "fallback answer"}},
	}
	u := f.build()

	answer, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Flags.FallbackProvider {
		t.Fatal("expected fallback provider flag")
	}
	if answer.Provider != "secondary" {
		t.Fatalf("expected secondary provider, got %s", answer.Provider)
	}
}

func TestAnswerSideEffectFailuresDoNotFailRequest(t *testing.T) {
	f := defaultAnswerFixture()
	f.convs.appendErr = errors.New("db offline")
	f.events.err = errors.New("broker offline")
	u := f.build()

	answer, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy", ConversationID: "c-1"})
	if err != nil {
		t.Fatalf("expected best-effort side effects, got %v", err)
	}
	if answer.Text == "" {
		t.Fatal("expected an answer despite side-effect failures")
	}
}

func TestAnswerConversationHistoryFlowsToExpansion(t *testing.T) {
	f := defaultAnswerFixture()
	f.convs.history = []domain.Exchange{{Question: "previous question", Answer: "previous answer"}}
	u := f.build()

	if _, err := u.Answer(context.Background(), domain.AskRequest{Question: "refund policy", ConversationID: "c-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.variants.history) != 1 || f.variants.history[0].Question != "previous question" {
		t.Fatalf("expected history forwarded to expansion, got %+v", f.variants.history)
	}
}
