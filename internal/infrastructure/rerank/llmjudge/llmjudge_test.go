package llmjudge

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubRunner struct {
	response string
	err      error
	prompt   string
}

func (s *stubRunner) GenerateText(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func (s *stubRunner) GenerateJSON(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func TestScoreParsesVerdict(t *testing.T) {
	runner := &stubRunner{response: `{"results":[{"index":0,"score":0.9},{"index":1,"score":0.2}]}`}
	p := New(runner)

	scores, err := p.Score(context.Background(), "refund policy", []string{"doc a", "doc b"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != 0.9 || scores[1] != 0.2 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if !strings.Contains(runner.prompt, "refund policy") || !strings.Contains(runner.prompt, "[1] doc b") {
		t.Fatalf("unexpected prompt: %s", runner.prompt)
	}
}

func TestScoreClampsOutOfRangeScores(t *testing.T) {
	runner := &stubRunner{response: `{"results":[{"index":0,"score":1.7},{"index":1,"score":-0.3}]}`}
	p := New(runner)

	scores, err := p.Score(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != 1.0 || scores[1] != 0.0 {
		t.Fatalf("expected clamped scores, got %v", scores)
	}
}

func TestScoreToleratesSurroundingText(t *testing.T) {
	runner := &stubRunner{response: "Here is the verdict:\n" + `{"results":[{"index":0,"score":0.5}]}` + "\nDone."}
	p := New(runner)

	scores, err := p.Score(context.Background(), "q", []string{"a"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != 0.5 {
		t.Fatalf("unexpected scores %v", scores)
	}
}

func TestScoreRejectsIncompleteVerdict(t *testing.T) {
	runner := &stubRunner{response: `{"results":[{"index":0,"score":0.5}]}`}
	p := New(runner)

	if _, err := p.Score(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for a verdict missing a document")
	}
}

func TestScoreRejectsOutOfRangeIndex(t *testing.T) {
	runner := &stubRunner{response: `{"results":[{"index":5,"score":0.5}]}`}
	p := New(runner)

	if _, err := p.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatal("expected error for an out-of-range index")
	}
}

func TestScorePropagatesRunnerError(t *testing.T) {
	runner := &stubRunner{err: errors.New("model offline")}
	p := New(runner)

	if _, err := p.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatal("expected runner error")
	}
}
