package recovery

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff doubles the delay on every attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func NewExponentialBackoff(base, max time.Duration) ExponentialBackoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return ExponentialBackoff{BaseDelay: base, MaxDelay: max}
}

// Delay returns the wait before retrying after attempt n (0-indexed):
// min(base * 2^n, max).
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := b.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= b.MaxDelay || delay <= 0 {
			return b.MaxDelay
		}
	}
	if delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

// backOff adapts the strategy to the backoff library with jitter disabled,
// so observed delays match Delay exactly.
func (b ExponentialBackoff) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.BaseDelay
	bo.MaxInterval = b.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
