package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/meridian/internal/clock"
)

// ErrCircuitOpen is returned without invoking the guarded operation while
// the breaker is open and the recovery timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit_open")

type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker stops invoking a failing dependency after a run of
// consecutive failures. After recoveryTimeout it allows a single trial call:
// success closes the circuit, failure reopens it.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	clock            clock.Clock

	state       BreakerState
	failures    int
	lastFailure time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		clock:            clk,
		state:            StateClosed,
	}
}

// State reports the current breaker state, accounting for an elapsed
// recovery timeout.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.clock.Now().Sub(cb.lastFailure) >= cb.recoveryTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Call invokes fn under the breaker. In the open state it fails fast with
// ErrCircuitOpen until the recovery timeout elapses; the next call then runs
// as a half-open trial.
func (cb *CircuitBreaker) Call(ctx context.Context, fn Operation) (any, error) {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) < cb.recoveryTimeout {
			cb.mu.Unlock()
			return nil, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	result, err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
		}
		return nil, err
	}

	cb.state = StateClosed
	cb.failures = 0
	return result, nil
}
