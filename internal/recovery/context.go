package recovery

import (
	"sync"
	"time"

	"github.com/smallbiznis/meridian/internal/clock"
)

type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// Attempt records one execution inside a recovery scope.
type Attempt struct {
	Timestamp time.Time      `json:"timestamp"`
	Outcome   AttemptOutcome `json:"outcome"`
	Error     string         `json:"error,omitempty"`
}

// RecoveryContext tracks the attempts and scratch state of one logical
// operation across retries, so callers can audit what happened after the
// guarded block finishes.
type RecoveryContext struct {
	mu       sync.Mutex
	stateKey string
	clock    clock.Clock
	attempts []Attempt
	state    map[string]any
}

func NewRecoveryContext(stateKey string, clk clock.Clock) *RecoveryContext {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &RecoveryContext{
		stateKey: stateKey,
		clock:    clk,
		attempts: []Attempt{},
		state:    map[string]any{},
	}
}

func (rc *RecoveryContext) StateKey() string { return rc.stateKey }

// RecordAttempt appends an attempt with the given outcome.
func (rc *RecoveryContext) RecordAttempt(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	attempt := Attempt{Timestamp: rc.clock.Now(), Outcome: OutcomeSuccess}
	if err != nil {
		attempt.Outcome = OutcomeFailure
		attempt.Error = err.Error()
	}
	rc.attempts = append(rc.attempts, attempt)
}

// Attempts returns a copy of the recorded attempts.
func (rc *RecoveryContext) Attempts() []Attempt {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]Attempt, len(rc.attempts))
	copy(out, rc.attempts)
	return out
}

// SetState stores a named value in the recovery scope.
func (rc *RecoveryContext) SetState(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state[key] = value
}

// State returns a copy of the scope's state map.
func (rc *RecoveryContext) State() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]any, len(rc.state))
	for k, v := range rc.state {
		out[k] = v
	}
	return out
}
