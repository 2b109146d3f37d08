package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resilience holds the Prometheus collectors for the fault-tolerance layer.
// A nil *Resilience is a valid no-op sink; all observe methods tolerate it
// so the core types can run without metrics wired.
type Resilience struct {
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec
	BreakerCacheHits   *prometheus.CounterVec

	RetryAttempts  *prometheus.CounterVec
	RetryExhausted *prometheus.CounterVec

	DegradationLevel *prometheus.GaugeVec
	LevelChanges     *prometheus.CounterVec

	Fallbacks *prometheus.CounterVec
}

// NewResilience creates and registers the resilience collectors
func NewResilience(reg prometheus.Registerer, namespace string) *Resilience {
	if namespace == "" {
		namespace = "docassist"
	}

	m := &Resilience{
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),
		BreakerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected because the breaker was open",
		}, []string{"breaker"}),
		BreakerCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_cache_hits_total",
			Help:      "Result cache hits inside the circuit breaker",
		}, []string{"breaker"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts by outcome",
		}, []string{"policy", "outcome"}),
		RetryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retry_exhausted_total",
			Help:      "Operations that failed after all retry attempts",
		}, []string{"policy"}),
		DegradationLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "degradation_level",
			Help:      "Current degradation level per service (0=full, 3=minimal)",
		}, []string{"service"}),
		LevelChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "degradation_level_changes_total",
			Help:      "Degradation level changes per service",
		}, []string{"service", "to"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "fallbacks_total",
			Help:      "Fallback synthesis outcomes",
		}, []string{"dependency", "strategy", "source"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BreakerState,
			m.BreakerTransitions,
			m.BreakerRejections,
			m.BreakerCacheHits,
			m.RetryAttempts,
			m.RetryExhausted,
			m.DegradationLevel,
			m.LevelChanges,
			m.Fallbacks,
		)
	}

	return m
}

// ObserveBreakerState records the breaker's current state
func (m *Resilience) ObserveBreakerState(breaker string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(breaker).Set(float64(state))
}

// ObserveBreakerTransition records a state transition
func (m *Resilience) ObserveBreakerTransition(breaker, from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues(breaker, from, to).Inc()
}

// ObserveBreakerRejection records a call blocked by an open breaker
func (m *Resilience) ObserveBreakerRejection(breaker string) {
	if m == nil {
		return
	}
	m.BreakerRejections.WithLabelValues(breaker).Inc()
}

// ObserveBreakerCacheHit records a result cache hit
func (m *Resilience) ObserveBreakerCacheHit(breaker string) {
	if m == nil {
		return
	}
	m.BreakerCacheHits.WithLabelValues(breaker).Inc()
}

// ObserveRetryAttempt records a single attempt outcome
func (m *Resilience) ObserveRetryAttempt(policy string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.RetryAttempts.WithLabelValues(policy, outcome).Inc()
}

// ObserveRetryExhausted records an operation that exhausted its attempts
func (m *Resilience) ObserveRetryExhausted(policy string) {
	if m == nil {
		return
	}
	m.RetryExhausted.WithLabelValues(policy).Inc()
}

// ObserveDegradationLevel records a service's current level
func (m *Resilience) ObserveDegradationLevel(service string, level int) {
	if m == nil {
		return
	}
	m.DegradationLevel.WithLabelValues(service).Set(float64(level))
}

// ObserveLevelChange records a degradation level change
func (m *Resilience) ObserveLevelChange(service, to string) {
	if m == nil {
		return
	}
	m.LevelChanges.WithLabelValues(service, to).Inc()
}

// ObserveFallback records a fallback synthesis outcome
func (m *Resilience) ObserveFallback(dependency, strategy, source string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(dependency, strategy, source).Inc()
}
