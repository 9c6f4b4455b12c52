package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// HealthConfig controls the per-provider circuit breakers.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive recorded failures
	// that opens a provider's circuit.
	FailureThreshold uint32
	// Cooldown is how long an open circuit stays open before allowing a
	// single half-open probe.
	Cooldown time.Duration
}

func (c HealthConfig) normalize() HealthConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// HealthTracker is the process-wide provider health state. It is shared
// across requests and safe for concurrent use; construct isolated
// instances in tests.
type HealthTracker struct {
	cfg HealthConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewHealthTracker(cfg HealthConfig) *HealthTracker {
	return &HealthTracker{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the provider's breaker. When the circuit is
// open, fn is not invoked and the returned error satisfies
// IsCircuitOpen. Context cancellation is never recorded as a failure.
func (t *HealthTracker) Execute(provider string, fn func() error) error {
	breaker := t.breaker(provider)
	_, err := breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// State reports the provider's current circuit state.
func (t *HealthTracker) State(provider string) gobreaker.State {
	return t.breaker(provider).State()
}

func (t *HealthTracker) breaker(provider string) *gobreaker.CircuitBreaker[any] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if breaker, ok := t.breakers[provider]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name: provider,
		// Exactly one probe while half-open.
		MaxRequests: 1,
		Timeout:     t.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= t.cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Caller cancellation and per-request rejections say nothing
			// about the provider's health.
			return errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("provider_circuit_state_change", "provider", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	t.breakers[provider] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
