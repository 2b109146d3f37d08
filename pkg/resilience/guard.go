package resilience

import (
	"context"
)

// Guard composes a retry policy around a circuit breaker for one named
// dependency and reports every terminal outcome to the degradation manager.
type Guard struct {
	name        string
	dependency  DependencyType
	breaker     *CircuitBreaker
	policy      *RetryPolicy
	degradation *DegradationManager
	fallbacks   *FallbackStrategyManager
}

// Execute runs the operation as retry(breaker(op)) and evaluates the
// terminal outcome against the degradation ladder
func (g *Guard) Execute(ctx context.Context, operation string, op Operation) (interface{}, error) {
	result, err := g.policy.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.breaker.Execute(ctx, op)
	})

	g.degradation.Evaluate(g.name, operation, err == nil)
	return result, err
}

// ExecuteWithFallback is Execute plus fallback synthesis: on terminal
// failure the dependency-type strategy produces a substitute result. The
// returned FallbackResult distinguishes "degraded but answered"
// (Fallback=true) from a live answer.
func (g *Guard) ExecuteWithFallback(ctx context.Context, operation string, op Operation) FallbackResult {
	result, err := g.Execute(ctx, operation, op)
	if err == nil {
		g.degradation.StoreFallback(g.name, operation, result, "live")
		return FallbackResult{Success: true, Data: result, Source: "live"}
	}

	sctx := ServiceContext{
		Service:    g.name,
		Dependency: g.dependency,
		Operation:  operation,
	}
	fallback := g.fallbacks.HandleFallback(ctx, g.dependency, sctx, nil)
	if fallback.Err == nil {
		fallback.Err = err
	}
	return fallback
}

// State exposes the underlying breaker state
func (g *Guard) State() CircuitState {
	return g.breaker.State()
}
