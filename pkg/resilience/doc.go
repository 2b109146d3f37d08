// Package resilience provides circuit breaking, retry with backoff, graceful
// service degradation, and fallback response synthesis for calls to
// unreliable downstream dependencies (LLM providers, document/OCR backends,
// databases).
//
// # Circuit Breaker Pattern
//
// The circuit breaker blocks calls to a dependency while it is failing.
// Tripping is driven by counted failures within a trailing time window,
// not lifetime totals:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "llm-provider",
//		FailureThreshold: 5,
//		SuccessThreshold: 2,
//		Timeout:          60 * time.Second,
//		TimeWindow:       60 * time.Second,
//	}, logger, metrics)
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.Complete(ctx, prompt)
//	})
//
// # Retry with Exponential Backoff
//
// The retry policy wraps an operation in a bounded attempt loop. Error
// kinds decide eligibility; the inter-attempt wait grows exponentially
// with jitter and never blocks other goroutines:
//
//	policy := resilience.NewRetryPolicy(resilience.DefaultRetryConfig(), logger, metrics)
//	result, err := policy.Execute(ctx, op)
//
// # Graceful Degradation
//
// The degradation manager tracks consecutive success/failure streaks per
// service and derives a capability level on the
// FULL_SERVICE → CACHED_DATA → SIMPLIFIED_RESPONSE → MINIMAL_RESPONSE
// ladder. Recovery steps down one rung at a time.
//
// # Fallback Strategies
//
// When a protected call ultimately fails, the fallback manager dispatches
// to a dependency-type strategy that synthesizes a substitute: cached data,
// a simplified canned response, a minimal stub, or a queued-for-later
// acknowledgement, chosen by the current degradation level.
//
// # Combined Usage
//
// A Registry owns all named instances for one host service; a Guard
// composes them:
//
//	registry := resilience.NewRegistry(resilience.RegistryConfig{...})
//	guard := registry.Guard("llm-provider", resilience.DependencyTool)
//	result := guard.ExecuteWithFallback(ctx, "summarize", op)
//
// All types are safe for concurrent use.
package resilience
