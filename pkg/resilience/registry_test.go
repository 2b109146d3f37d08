package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/docassist/docassist-platform/pkg/errors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(RegistryConfig{
		BreakerDefaults: CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			Timeout:          50 * time.Millisecond,
			TimeWindow:       10 * time.Second,
		},
		RetryDefaults: RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
		},
		Degradation: DegradationConfig{
			DegradationThreshold: 2,
			RecoveryThreshold:    2,
		},
	})
}

func TestRegistry_BreakerIdentity(t *testing.T) {
	r := newTestRegistry(t)

	a := r.Breaker("llm-provider")
	b := r.Breaker("llm-provider")
	c := r.Breaker("document-db")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "llm-provider", a.Name())
}

func TestRegistry_PolicyIdentity(t *testing.T) {
	r := newTestRegistry(t)

	a := r.Policy("llm-provider")
	b := r.Policy("llm-provider")

	assert.Same(t, a, b)
	assert.Equal(t, "llm-provider", a.Name())
}

func TestRegistry_Report(t *testing.T) {
	r := newTestRegistry(t)

	r.Breaker("llm-provider")
	r.Policy("llm-provider")
	r.Degradation().Register("llm-provider", LevelFullService)

	report := r.Report()
	require.Len(t, report.Breakers, 1)
	require.Len(t, report.Retries, 1)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "llm-provider", report.Breakers[0].Name)
	assert.Equal(t, StateClosed, report.Breakers[0].State)
}

func TestRegistry_ResetAll(t *testing.T) {
	r := newTestRegistry(t)
	cb := r.Breaker("llm-provider")

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, apperrors.NewProviderError("p", "down")
		})
	}
	require.Equal(t, StateOpen, cb.State())

	r.ResetAll()
	assert.Equal(t, StateClosed, cb.State())
}

func TestGuard_ComposesRetryAroundBreaker(t *testing.T) {
	r := newTestRegistry(t)
	guard := r.Guard("llm-provider", DependencyTool)

	calls := 0
	result, err := guard.Execute(context.Background(), "summarize", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, apperrors.NewTimeoutError("summarize")
		}
		return "summary", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "summary", result)
	assert.Equal(t, 2, calls)

	// The outcome fed the degradation ladder
	m, ok := r.Degradation().Metrics("llm-provider")
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.TotalRequests)
}

func TestGuard_TerminalFailureDegradesService(t *testing.T) {
	r := newTestRegistry(t)
	guard := r.Guard("llm-provider", DependencyTool)

	for i := 0; i < 2; i++ {
		_, err := guard.Execute(context.Background(), "summarize", func(ctx context.Context) (interface{}, error) {
			return nil, apperrors.NewProviderError("p", "down")
		})
		require.Error(t, err)
	}

	assert.Equal(t, LevelCachedData, r.Degradation().CurrentLevel("llm-provider"))
}

func TestGuard_ExecuteWithFallback(t *testing.T) {
	r := newTestRegistry(t)
	guard := r.Guard("llm-provider", DependencyTool)

	// A live success is returned and cached
	result := guard.ExecuteWithFallback(context.Background(), "summarize", func(ctx context.Context) (interface{}, error) {
		return "summary", nil
	})
	require.True(t, result.Success)
	assert.Equal(t, "live", result.Source)
	assert.False(t, result.Fallback)

	// On terminal failure the cached payload substitutes
	r.Degradation().ForceLevel("llm-provider", LevelCachedData, "test")
	result = guard.ExecuteWithFallback(context.Background(), "summarize", func(ctx context.Context) (interface{}, error) {
		return nil, apperrors.NewProviderError("p", "down")
	})
	require.True(t, result.Success)
	assert.True(t, result.Fallback)
	assert.Equal(t, "cache", result.Source)
	assert.Equal(t, "summary", result.Data)
}
