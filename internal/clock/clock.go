package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services that make time-based decisions
// (circuit breaker recovery, idempotency expiry, validity windows).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock {
	return systemClock{}
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
