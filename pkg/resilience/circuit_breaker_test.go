package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/docassist/docassist-platform/pkg/errors"
)

func countedErr() error {
	return apperrors.NewProviderError("test-provider", "boom")
}

func newTestBreaker(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test-cb"
	}
	return NewCircuitBreaker(cfg, nil, nil)
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		TimeWindow:       time.Second,
	})

	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_TripsAtThresholdWithinWindow(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       10 * time.Second,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
		assert.Equal(t, StateClosed, cb.State())
	}

	// Third counted failure within the window trips the breaker
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, countedErr()
	})
	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
}

func TestCircuitBreaker_FailuresOutsideWindowDoNotTrip(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       50 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}

	// Let the earlier failures age out of the window
	time.Sleep(60 * time.Millisecond)

	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, countedErr()
	})
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_UncountedKindsNeverTrip(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, apperrors.NewValidationError("bad input")
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateClosed, cb.State())
	snap := cb.Snapshot()
	assert.Equal(t, uint64(10), snap.Counters.TotalFailures)
	assert.Equal(t, 0, snap.RecentFailures)
}

func TestCircuitBreaker_PlainErrorsAreNotCounted(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	for i := 0; i < 5; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, stderrors.New("plain failure")
		})
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CustomCountedPredicate(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
		Counted:          func(err error) bool { return true },
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, stderrors.New("anything counts now")
		})
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpenToHalfOpenAfterTimeout(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		TimeWindow:       10 * time.Second,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// Before the timeout the breaker still blocks
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "early", nil
	})
	require.Error(t, err)

	time.Sleep(60 * time.Millisecond)

	// The transition happens on the next call, not in the background
	assert.Equal(t, StateOpen, cb.State())

	result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "probe", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "probe", result)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		TimeWindow:       10 * time.Second,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	time.Sleep(60 * time.Millisecond)

	// First probe success keeps HALF_OPEN
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Second success closes and zeroes the counters
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())

	snap := cb.Snapshot()
	assert.Equal(t, uint64(0), snap.Counters.TotalCalls)
	assert.Equal(t, uint64(0), snap.Counters.TotalFailures)
	assert.Equal(t, 0, snap.RecentFailures)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		TimeWindow:       10 * time.Second,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	time.Sleep(60 * time.Millisecond)

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, countedErr()
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ProbeWindowExpiryReopens(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		TimeWindow:       10 * time.Second,
		HalfOpenDuration: 40 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	time.Sleep(60 * time.Millisecond)

	// Enter HALF_OPEN with a single success, below the threshold
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	assert.Equal(t, StateHalfOpen, cb.State())

	// Probe window expires without reaching the success threshold
	time.Sleep(50 * time.Millisecond)
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "late", nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_TransitionLog(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		TimeWindow:       10 * time.Second,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	time.Sleep(60 * time.Millisecond)
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	snap := cb.Snapshot()
	require.Len(t, snap.Transitions, 3)
	assert.Equal(t, StateClosed, snap.Transitions[0].From)
	assert.Equal(t, StateOpen, snap.Transitions[0].To)
	assert.Equal(t, StateHalfOpen, snap.Transitions[1].To)
	assert.Equal(t, StateClosed, snap.Transitions[2].To)
	for _, tr := range snap.Transitions {
		assert.NotEmpty(t, tr.Reason)
		assert.False(t, tr.Time.IsZero())
	}
}

func TestCircuitBreaker_ResultCache(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
		CacheTTL:         time.Minute,
		CacheSize:        8,
	})

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return "computed", nil
	}

	result, err := cb.ExecuteCached(context.Background(), "op:arg1", op)
	require.NoError(t, err)
	assert.Equal(t, "computed", result)

	// Second call with the same key short-circuits
	result, err = cb.ExecuteCached(context.Background(), "op:arg1", op)
	require.NoError(t, err)
	assert.Equal(t, "computed", result)
	assert.Equal(t, 1, calls)

	// A different key executes again
	_, err = cb.ExecuteCached(context.Background(), "op:arg2", op)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCircuitBreaker_CacheDisabledByDefault(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cb.ExecuteCached(context.Background(), "op:arg1", func(ctx context.Context) (interface{}, error) {
			calls++
			return "computed", nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, countedErr()
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "test-cb", cb.Name())
	snap := cb.Snapshot()
	assert.Equal(t, uint64(0), snap.Counters.TotalCalls)
	assert.Empty(t, snap.Transitions)

	// The breaker works again with its original configuration
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			panic("test panic")
		})
	})

	snap := cb.Snapshot()
	assert.Equal(t, uint64(1), snap.Counters.TotalCalls)
	assert.Equal(t, uint64(1), snap.Counters.TotalFailures)
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		TimeWindow:       time.Minute,
	})

	result, err := cb.Call(func() (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestIsCircuitBreakerError(t *testing.T) {
	err := &CircuitBreakerError{Name: "x", State: StateOpen}
	assert.True(t, IsCircuitBreakerError(err))
	assert.Contains(t, err.Error(), "OPEN")
	assert.False(t, IsCircuitBreakerError(stderrors.New("regular error")))
}
