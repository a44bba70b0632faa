package recovery

import (
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	"go.uber.org/fx"
)

func NewRetryFromConfig(cfg config.Config) *Retry {
	strategy := NewExponentialBackoff(cfg.Recovery.BaseDelay, cfg.Recovery.MaxDelay)
	return NewRetry(cfg.Recovery.MaxAttempts, strategy)
}

func NewCircuitBreakerFromConfig(cfg config.Config, clk clock.Clock) *CircuitBreaker {
	return NewCircuitBreaker(cfg.Recovery.FailureThreshold, cfg.Recovery.RecoveryTimeout, clk)
}

func NewIdempotencyManagerFromConfig(cfg config.Config) *IdempotencyManager {
	return NewIdempotencyManager(cfg.Recovery.IdempotencyTTL)
}

// Module provides process-wide recovery primitives. The circuit breaker and
// idempotency manager are singletons shared across requests; their state is
// process-local.
var Module = fx.Module("recovery",
	fx.Provide(
		NewRetryFromConfig,
		NewCircuitBreakerFromConfig,
		NewIdempotencyManagerFromConfig,
	),
)
