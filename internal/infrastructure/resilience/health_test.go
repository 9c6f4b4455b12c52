package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

func TestHealthTrackerOpensAfterConsecutiveFailures(t *testing.T) {
	tracker := NewHealthTracker(HealthConfig{FailureThreshold: 2, Cooldown: time.Minute})
	fail := func() error { return errors.New("boom") }

	if err := tracker.Execute("ollama", fail); err == nil {
		t.Fatal("expected the wrapped error")
	}
	if state := tracker.State("ollama"); state != gobreaker.StateClosed {
		t.Fatalf("expected closed after one failure, got %s", state)
	}

	tracker.Execute("ollama", fail)
	if state := tracker.State("ollama"); state != gobreaker.StateOpen {
		t.Fatalf("expected open after threshold, got %s", state)
	}

	calls := 0
	err := tracker.Execute("ollama", func() error { calls++; return nil })
	if !IsCircuitOpen(err) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	if calls != 0 {
		t.Fatal("an open circuit must not invoke the call")
	}
}

func TestHealthTrackerIsolatesProviders(t *testing.T) {
	tracker := NewHealthTracker(HealthConfig{FailureThreshold: 1, Cooldown: time.Minute})

	tracker.Execute("ollama", func() error { return errors.New("boom") })
	if state := tracker.State("ollama"); state != gobreaker.StateOpen {
		t.Fatalf("expected ollama open, got %s", state)
	}
	if state := tracker.State("openai"); state != gobreaker.StateClosed {
		t.Fatalf("expected openai untouched, got %s", state)
	}
	if err := tracker.Execute("openai", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error on healthy provider: %v", err)
	}
}

func TestHealthTrackerHalfOpenProbeRecovers(t *testing.T) {
	tracker := NewHealthTracker(HealthConfig{FailureThreshold: 1, Cooldown: 20 * time.Millisecond})

	tracker.Execute("ollama", func() error { return errors.New("boom") })
	if state := tracker.State("ollama"); state != gobreaker.StateOpen {
		t.Fatalf("expected open, got %s", state)
	}

	time.Sleep(30 * time.Millisecond)
	if err := tracker.Execute("ollama", func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to run, got %v", err)
	}
	if state := tracker.State("ollama"); state != gobreaker.StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}
}

func TestHealthTrackerIgnoresCancellationAndRejection(t *testing.T) {
	tracker := NewHealthTracker(HealthConfig{FailureThreshold: 1, Cooldown: time.Minute})

	tracker.Execute("ollama", func() error { return context.Canceled })
	tracker.Execute("ollama", func() error {
		return domain.WrapError(domain.ErrRejected, "generate", errors.New("content policy"))
	})
	if state := tracker.State("ollama"); state != gobreaker.StateClosed {
		t.Fatalf("expected cancellations and rejections to leave the circuit closed, got %s", state)
	}
}
