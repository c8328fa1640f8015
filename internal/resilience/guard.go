package resilience

import (
	"context"
	"time"
)

// GuardConfig configures a Guard for one upstream service.
type GuardConfig struct {
	Service string
	Retry   RetryConfig
	// Timeout bounds the whole guarded call including retries. Zero means no extra bound.
	Timeout time.Duration
}

// Guard runs upstream calls through bounded retry inside a circuit breaker,
// so one logical call counts once toward the breaker.
type Guard struct {
	service string
	breaker *CircuitBreaker
	retry   RetryConfig
	timeout time.Duration
}

// NewGuard creates a Guard using breaker. A nil breaker gets a default one.
func NewGuard(cfg GuardConfig, breaker *CircuitBreaker) *Guard {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}
	retry := cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(cfg.Service, "call")
	}
	return &Guard{service: cfg.Service, breaker: breaker, retry: retry, timeout: cfg.Timeout}
}

// Service returns the guarded service name.
func (g *Guard) Service() string { return g.service }

// Breaker returns the underlying circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }

// Call runs fn through g.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return DoVal(ctx, g.retry, fn)
	})
}
