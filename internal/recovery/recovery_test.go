package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_Delay(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 16*time.Second, b.Delay(4))
	// Capped at MaxDelay.
	assert.Equal(t, 30*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(63))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	retry := NewRetry(3, NewExponentialBackoff(time.Millisecond, 4*time.Millisecond))

	var calls int32
	result, err := retry.Execute(context.Background(), func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.EqualValues(t, 3, calls)
}

func TestRetry_ExhaustsAndReturnsLastError(t *testing.T) {
	retry := NewRetry(3, NewExponentialBackoff(time.Millisecond, 2*time.Millisecond))

	var calls int32
	lastErr := errors.New("provider unavailable")
	_, err := retry.Execute(context.Background(), func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, lastErr
	})

	assert.ErrorIs(t, err, lastErr)
	assert.EqualValues(t, 3, calls)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(3, time.Minute, clk)

	boom := errors.New("boom")
	fail := func(ctx context.Context) (any, error) { return nil, boom }

	for i := 0; i < 3; i++ {
		_, err := cb.Call(context.Background(), fail)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Fails fast without invoking the operation.
	var invoked bool
	_, err := cb.Call(context.Background(), func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(1, time.Minute, clk)

	boom := errors.New("boom")
	_, err := cb.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Trial success closes the circuit.
	result, err := cb.Call(context.Background(), func(ctx context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(2, time.Minute, clk)

	boom := errors.New("boom")
	fail := func(ctx context.Context) (any, error) { return nil, boom }

	cb.Call(context.Background(), fail)
	cb.Call(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(time.Minute)

	// The trial call fails and reopens immediately, below the threshold.
	_, err := cb.Call(context.Background(), fail)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, cb.State())

	_, err = cb.Call(context.Background(), fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestIdempotencyManager_ExecutesOnce(t *testing.T) {
	m := NewIdempotencyManager(time.Minute)

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "first", nil
	}

	result, cached, err := m.EnsureIdempotent(context.Background(), "pay_123", op)
	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.False(t, cached)

	// Same key, different operation: cached result wins and fn never runs.
	result, cached, err = m.EnsureIdempotent(context.Background(), "pay_123", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "second", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.True(t, cached)
	assert.EqualValues(t, 1, calls)
}

func TestIdempotencyManager_FailuresAreNotCached(t *testing.T) {
	m := NewIdempotencyManager(time.Minute)

	var calls int32
	_, _, err := m.EnsureIdempotent(context.Background(), "pay_err", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("declined")
	})
	require.Error(t, err)

	result, _, err := m.EnsureIdempotent(context.Background(), "pay_err", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 2, calls)
}

func TestIdempotencyManager_ConcurrentCallersShareExecution(t *testing.T) {
	m := NewIdempotencyManager(time.Minute)

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, _, err := m.EnsureIdempotent(context.Background(), "pay_race", op)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestRecoveryContext_TracksAttempts(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	rc := NewRecoveryContext("payment_retry:pay_1", clk)

	rc.RecordAttempt(errors.New("timeout"))
	clk.Advance(time.Second)
	rc.RecordAttempt(nil)
	rc.SetState("circuit_breaker_state", "closed")

	attempts := rc.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeFailure, attempts[0].Outcome)
	assert.Equal(t, "timeout", attempts[0].Error)
	assert.Equal(t, OutcomeSuccess, attempts[1].Outcome)
	assert.True(t, attempts[1].Timestamp.After(attempts[0].Timestamp))

	assert.Equal(t, "closed", rc.State()["circuit_breaker_state"])
	assert.Equal(t, "payment_retry:pay_1", rc.StateKey())
}
