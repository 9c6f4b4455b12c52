package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
	"github.com/antonkh/knowledge-qa/internal/infrastructure/resilience"
)

// ProviderRates maps provider name to estimated cost per 1K tokens.
type ProviderRates map[string]float64

// GenerationOrchestrator drives an ordered provider chain with bounded
// retries, circuit-breaker eligibility, and failover. Providers are
// attempted strictly sequentially; failover is never speculative.
type GenerationOrchestrator struct {
	providers []ports.GenerationProvider
	health    *resilience.HealthTracker
	retry     resilience.RetryPolicy
	rates     ProviderRates
	timeout   time.Duration
}

func NewGenerationOrchestrator(
	providers []ports.GenerationProvider,
	health *resilience.HealthTracker,
	retry resilience.RetryPolicy,
	rates ProviderRates,
	timeout time.Duration,
) *GenerationOrchestrator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GenerationOrchestrator{
		providers: providers,
		health:    health,
		retry:     retry.Normalize(),
		rates:     rates,
		timeout:   timeout,
	}
}

// GenerationResult is the orchestrator's terminal success state.
type GenerationResult struct {
	Text     string
	Provider string
	Fallback bool
	Attempts []domain.GenerationAttempt
}

// Generate walks the provider chain. A provider whose circuit is open is
// skipped without an attempt. A fatal (rejected) error surfaces
// immediately without failover. When the chain is exhausted the error is
// ErrGenerationUnavailable.
func (o *GenerationOrchestrator) Generate(
	ctx context.Context,
	question string,
	history []domain.Exchange,
	evidence []domain.RerankedResult,
) (*GenerationResult, error) {
	if len(o.providers) == 0 {
		return nil, domain.WrapError(domain.ErrGenerationUnavailable, "generate", errors.New("no providers configured"))
	}

	attempts := make([]domain.GenerationAttempt, 0, o.retry.MaxAttempts)
	var lastErr error
	for i, provider := range o.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var gen domain.Generation
		err := o.health.Execute(provider.Name(), func() error {
			g, providerAttempts, attemptErr := o.attemptWithRetry(ctx, provider, question, history, evidence)
			attempts = append(attempts, providerAttempts...)
			gen = g
			return attemptErr
		})
		if err == nil {
			return &GenerationResult{
				Text:     gen.Text,
				Provider: provider.Name(),
				Fallback: i > 0,
				Attempts: attempts,
			}, nil
		}
		if resilience.IsCircuitOpen(err) {
			slog.Info("provider_skipped_circuit_open", "provider", provider.Name())
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if domain.IsKind(err, domain.ErrRejected) || domain.IsKind(err, domain.ErrInvalidInput) {
			return nil, err
		}

		slog.Warn("provider_failover", "provider", provider.Name(), "error", err)
		lastErr = err
	}
	return nil, domain.WrapError(domain.ErrGenerationUnavailable, "generate", lastErr)
}

func (o *GenerationOrchestrator) attemptWithRetry(
	ctx context.Context,
	provider ports.GenerationProvider,
	question string,
	history []domain.Exchange,
	evidence []domain.RerankedResult,
) (domain.Generation, []domain.GenerationAttempt, error) {
	name := provider.Name()
	backoff := o.retry.InitialBackoff
	attempts := make([]domain.GenerationAttempt, 0, o.retry.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Generation{}, attempts, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
		start := time.Now()
		gen, err := provider.Generate(attemptCtx, question, history, evidence)
		cancel()
		latency := time.Since(start)

		if err == nil {
			attempts = append(attempts, domain.GenerationAttempt{
				Provider:         name,
				Latency:          latency,
				PromptTokens:     gen.PromptTokens,
				CompletionTokens: gen.CompletionTokens,
				EstimatedCost:    o.estimateCost(name, gen),
				Outcome:          domain.AttemptSuccess,
			})
			return gen, attempts, nil
		}

		outcome := domain.AttemptFatal
		if domain.IsKind(err, domain.ErrTemporary) {
			outcome = domain.AttemptRetryable
		}
		attempts = append(attempts, domain.GenerationAttempt{
			Provider: name,
			Latency:  latency,
			Outcome:  outcome,
		})
		lastErr = err

		if outcome != domain.AttemptRetryable || attempt == o.retry.MaxAttempts {
			return domain.Generation{}, attempts, err
		}

		slog.Warn("generation_retry",
			"provider", name,
			"attempt", attempt,
			"max_attempts", o.retry.MaxAttempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Generation{}, attempts, ctx.Err()
		case <-timer.C:
		}
		backoff = o.retry.NextBackoff(backoff)
	}
	return domain.Generation{}, attempts, lastErr
}

func (o *GenerationOrchestrator) estimateCost(provider string, gen domain.Generation) float64 {
	rate, ok := o.rates[provider]
	if !ok || rate <= 0 {
		return 0
	}
	return float64(gen.PromptTokens+gen.CompletionTokens) / 1000.0 * rate
}
