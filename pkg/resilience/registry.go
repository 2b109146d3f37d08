package resilience

import (
	"sync"

	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
)

// RegistryConfig holds the defaults applied to instances the registry creates
type RegistryConfig struct {
	BreakerDefaults CircuitBreakerConfig
	RetryDefaults   RetryConfig
	Degradation     DegradationConfig
	Notifier        LevelNotifier
	Logger          *logging.Logger
	Metrics         *metrics.Resilience
}

// Registry owns the named breakers, retry policies, and the degradation and
// fallback managers for one host service. It replaces process-wide singletons;
// the host constructs one and passes it down.
type Registry struct {
	config RegistryConfig

	mutex    sync.Mutex
	breakers map[string]*CircuitBreaker
	policies map[string]*RetryPolicy

	degradation *DegradationManager
	fallbacks   *FallbackStrategyManager

	logger  *logging.Logger
	metrics *metrics.Resilience
}

// RegistryReport is the full snapshot exposed on the ops surface
type RegistryReport struct {
	Breakers []Stats         `json:"breakers"`
	Retries  []RetryStats    `json:"retries"`
	Services []ServiceReport `json:"services"`
}

// NewRegistry creates a registry with the given defaults
func NewRegistry(config RegistryConfig) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	r := &Registry{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
		policies: make(map[string]*RetryPolicy),
		logger:   logger,
		metrics:  config.Metrics,
	}

	r.degradation = NewDegradationManager(config.Degradation, config.Notifier, logger, config.Metrics)
	r.fallbacks = NewFallbackStrategyManager(r.degradation, logger, config.Metrics)
	return r
}

// Breaker returns the named circuit breaker, creating it with the registry
// defaults on first use
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.config.BreakerDefaults
	cfg.Name = name
	cb := NewCircuitBreaker(cfg, r.logger, r.metrics)
	r.breakers[name] = cb
	return cb
}

// Policy returns the named retry policy, creating it with the registry
// defaults on first use
func (r *Registry) Policy(name string) *RetryPolicy {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if p, ok := r.policies[name]; ok {
		return p
	}

	cfg := r.config.RetryDefaults
	if cfg.MaxAttempts == 0 {
		cfg = DefaultRetryConfig()
	}
	cfg.Name = name
	p := NewRetryPolicy(cfg, r.logger, r.metrics)
	r.policies[name] = p
	return p
}

// Degradation returns the shared degradation manager
func (r *Registry) Degradation() *DegradationManager {
	return r.degradation
}

// Fallbacks returns the shared fallback strategy manager
func (r *Registry) Fallbacks() *FallbackStrategyManager {
	return r.fallbacks
}

// Guard returns the composed retry-around-breaker executor for the named
// dependency
func (r *Registry) Guard(name string, dep DependencyType) *Guard {
	return &Guard{
		name:        name,
		dependency:  dep,
		breaker:     r.Breaker(name),
		policy:      r.Policy(name),
		degradation: r.degradation,
		fallbacks:   r.fallbacks,
	}
}

// Report snapshots every registered instance
func (r *Registry) Report() RegistryReport {
	r.mutex.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	policies := make([]*RetryPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		policies = append(policies, p)
	}
	r.mutex.Unlock()

	report := RegistryReport{
		Breakers: make([]Stats, 0, len(breakers)),
		Retries:  make([]RetryStats, 0, len(policies)),
		Services: r.degradation.Report(),
	}
	for _, cb := range breakers {
		report.Breakers = append(report.Breakers, cb.Snapshot())
	}
	for _, p := range policies {
		report.Retries = append(report.Retries, p.Stats())
	}
	return report
}

// ResetAll restores every breaker and retry policy to its
// freshly-constructed state
func (r *Registry) ResetAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
	for _, p := range r.policies {
		p.ResetStats()
	}
}
