package recovery

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Operation is a unit of work guarded by the recovery primitives.
type Operation func(ctx context.Context) (any, error)

// Retry re-executes an operation on failure, sleeping per the configured
// strategy between attempts. The last error is returned once maxAttempts
// executions have failed.
type Retry struct {
	maxAttempts int
	strategy    ExponentialBackoff
}

func NewRetry(maxAttempts int, strategy ExponentialBackoff) *Retry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retry{maxAttempts: maxAttempts, strategy: strategy}
}

func (r *Retry) MaxAttempts() int { return r.maxAttempts }

// Execute runs op until it succeeds or maxAttempts executions have failed.
// Context cancellation stops further attempts.
func (r *Retry) Execute(ctx context.Context, op Operation) (any, error) {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(r.strategy.backOff(), uint64(r.maxAttempts-1)),
		ctx,
	)
	return backoff.RetryWithData(func() (any, error) {
		return op(ctx)
	}, bo)
}
