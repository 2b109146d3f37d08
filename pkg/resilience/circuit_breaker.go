package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docassist/docassist-platform/pkg/errors"
	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, probe requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Operation is a caller-supplied protected call.
type Operation func(ctx context.Context) (interface{}, error)

// maxWindowEntries bounds each sliding window regardless of traffic volume.
const maxWindowEntries = 256

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of counted failures within TimeWindow
	// that trips the breaker from CLOSED to OPEN
	FailureThreshold int
	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// required to close the breaker again
	SuccessThreshold int
	// Timeout is the period of the open state, after which the next call
	// is allowed through as a probe
	Timeout time.Duration
	// TimeWindow is the trailing interval in which counted failures are
	// summed; older failures no longer count toward tripping
	TimeWindow time.Duration
	// HalfOpenDuration bounds the probe phase; if SuccessThreshold is not
	// reached within it, the breaker reopens
	HalfOpenDuration time.Duration
	// CountedKinds lists the error kinds that affect state transitions.
	// Failures of other kinds are recorded in stats but never trip the breaker.
	CountedKinds []errors.Kind
	// Counted overrides kind matching with an arbitrary predicate
	Counted func(error) bool
	// CacheTTL enables the opt-in result cache when positive. Only safe for
	// idempotent, deterministic operations.
	CacheTTL time.Duration
	// CacheSize caps the result cache; oldest entries are evicted first
	CacheSize int
}

// DefaultCountedKinds are the failure kinds that trip a breaker unless
// configured otherwise.
func DefaultCountedKinds() []errors.Kind {
	return []errors.Kind{
		errors.KindTimeout,
		errors.KindExternal,
		errors.KindUnavailable,
		errors.KindRateLimit,
	}
}

// Transition is one entry of the append-only state change log
type Transition struct {
	Time   time.Time    `json:"time"`
	From   CircuitState `json:"from"`
	To     CircuitState `json:"to"`
	Reason string       `json:"reason"`
	Stats  Counters     `json:"stats"`
}

// Counters is a snapshot of the lifetime call counters
type Counters struct {
	TotalCalls     uint64    `json:"total_calls"`
	TotalSuccesses uint64    `json:"total_successes"`
	TotalFailures  uint64    `json:"total_failures"`
	LastSuccess    time.Time `json:"last_success"`
	LastFailure    time.Time `json:"last_failure"`
}

// Stats is a point-in-time snapshot of a breaker
type Stats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	Counters        Counters     `json:"counters"`
	RecentFailures  int          `json:"recent_failures"`
	RecentSuccesses int          `json:"recent_successes"`
	Transitions     []Transition `json:"transitions"`
}

// CircuitBreaker is a per-dependency state machine that blocks calls
// during sustained failure. All state is guarded by a single mutex; no
// background timers are involved, timed transitions happen on the next call.
type CircuitBreaker struct {
	name    string
	config  CircuitBreakerConfig
	counted func(error) bool

	mutex          sync.Mutex
	state          CircuitState
	counters       Counters
	failureTimes   []time.Time
	successTimes   []time.Time
	halfOpenStart  time.Time
	halfOpenPasses int
	transitions    []Transition

	cache *expirable.LRU[string, interface{}]

	logger  *logging.Logger
	metrics *metrics.Resilience
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig, logger *logging.Logger, m *metrics.Resilience) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.TimeWindow <= 0 {
		config.TimeWindow = 60 * time.Second
	}
	if config.HalfOpenDuration <= 0 {
		config.HalfOpenDuration = 30 * time.Second
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 128
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	cb := &CircuitBreaker{
		name:    config.Name,
		config:  config,
		state:   StateClosed,
		logger:  logger,
		metrics: m,
	}

	if config.Counted != nil {
		cb.counted = config.Counted
	} else {
		kinds := config.CountedKinds
		if len(kinds) == 0 {
			kinds = DefaultCountedKinds()
		}
		set := make(map[errors.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			set[k] = struct{}{}
		}
		cb.counted = func(err error) bool {
			_, ok := set[errors.KindOf(err)]
			return ok
		}
	}

	if config.CacheTTL > 0 {
		cb.cache = expirable.NewLRU[string, interface{}](config.CacheSize, nil, config.CacheTTL)
	}

	cb.metrics.ObserveBreakerState(cb.name, int(StateClosed))
	return cb
}

// CircuitBreakerError is returned when a call is blocked by an open breaker
type CircuitBreakerError struct {
	Name  string
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return stderrors.As(err, &cbErr)
}

// Execute runs the operation if the breaker allows it. The operation's own
// error is propagated unchanged; a blocked call fails with *CircuitBreakerError.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	return cb.ExecuteCached(ctx, "", op)
}

// ExecuteCached is Execute with an optional result cache key. The key should
// identify the operation plus its serialized arguments; an empty key bypasses
// the cache. Cached results short-circuit execution after the block decision.
func (cb *CircuitBreaker) ExecuteCached(ctx context.Context, cacheKey string, op Operation) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	if cb.cache != nil && cacheKey != "" {
		if cached, ok := cb.cache.Get(cacheKey); ok {
			cb.metrics.ObserveBreakerCacheHit(cb.name)
			cb.logger.Debug("Circuit breaker cache hit", "breaker", cb.name, "key", cacheKey)
			return cached, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterCall(errors.NewInternalError(fmt.Sprintf("panic: %v", r)))
			panic(r)
		}
	}()

	result, err := op(ctx)
	cb.afterCall(err)

	if err == nil && cb.cache != nil && cacheKey != "" {
		cb.cache.Add(cacheKey, result)
	}
	return result, err
}

// Call is a convenience method for operations that don't need a context
func (cb *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return fn()
	})
}

// beforeCall runs the block decision under the lock
func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(cb.counters.LastFailure) >= cb.config.Timeout {
			cb.setState(StateHalfOpen, now, "timeout elapsed, allowing probe")
			cb.halfOpenStart = now
			cb.halfOpenPasses = 0
			return nil
		}
		cb.metrics.ObserveBreakerRejection(cb.name)
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	case StateHalfOpen:
		if now.Sub(cb.halfOpenStart) >= cb.config.HalfOpenDuration && cb.halfOpenPasses < cb.config.SuccessThreshold {
			cb.setState(StateOpen, now, "probe window expired without recovery")
			cb.counters.LastFailure = now
			cb.metrics.ObserveBreakerRejection(cb.name)
			return &CircuitBreakerError{Name: cb.name, State: StateOpen}
		}
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.counters.TotalCalls++

	if err == nil {
		cb.onSuccess(now)
	} else {
		cb.onFailure(now, err)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	cb.counters.TotalSuccesses++
	cb.counters.LastSuccess = now
	cb.successTimes = appendBounded(pruneWindow(cb.successTimes, now, cb.config.TimeWindow), now)

	if cb.state == StateHalfOpen {
		cb.halfOpenPasses++
		if cb.halfOpenPasses >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now, "recovered after successful probes")
			cb.resetCounters()
		}
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time, err error) {
	cb.counters.TotalFailures++
	cb.counters.LastFailure = now

	if !cb.counted(err) {
		return
	}

	cb.failureTimes = appendBounded(pruneWindow(cb.failureTimes, now, cb.config.TimeWindow), now)

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen, now, "counted failure during probe")
	case StateClosed:
		if len(cb.failureTimes) >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now, fmt.Sprintf("%d counted failures within %s", len(cb.failureTimes), cb.config.TimeWindow))
		}
	}
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time, reason string) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	cb.transitions = append(cb.transitions, Transition{
		Time:   now,
		From:   prev,
		To:     state,
		Reason: reason,
		Stats:  cb.counters,
	})

	cb.metrics.ObserveBreakerTransition(cb.name, prev.String(), state.String())
	cb.metrics.ObserveBreakerState(cb.name, int(state))

	cb.logger.Info("Circuit breaker state changed",
		"breaker", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"reason", reason,
		"total_calls", cb.counters.TotalCalls,
		"total_failures", cb.counters.TotalFailures,
	)
}

// resetCounters must be called with the mutex held
func (cb *CircuitBreaker) resetCounters() {
	cb.counters = Counters{}
	cb.failureTimes = nil
	cb.successTimes = nil
	cb.halfOpenPasses = 0
}

// State returns the current state. Timed transitions (OPEN to HALF_OPEN,
// probe expiry) happen on the next call, never here.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Snapshot returns a copy of the breaker's stats
func (cb *CircuitBreaker) Snapshot() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	transitions := make([]Transition, len(cb.transitions))
	copy(transitions, cb.transitions)

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Counters:        cb.counters,
		RecentFailures:  countWithin(cb.failureTimes, now, cb.config.TimeWindow),
		RecentSuccesses: countWithin(cb.successTimes, now, cb.config.TimeWindow),
		Transitions:     transitions,
	}
}

// Reset restores the breaker to its freshly-constructed state, keeping
// its name and configuration
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.resetCounters()
	cb.transitions = nil
	cb.halfOpenStart = time.Time{}
	if cb.cache != nil {
		cb.cache.Purge()
	}

	cb.metrics.ObserveBreakerState(cb.name, int(StateClosed))
	cb.logger.Info("Circuit breaker reset", "breaker", cb.name)
}

// pruneWindow drops instants older than the trailing window
func pruneWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	return times[i:]
}

// appendBounded appends an instant, dropping the oldest beyond the cap
func appendBounded(times []time.Time, t time.Time) []time.Time {
	times = append(times, t)
	if len(times) > maxWindowEntries {
		times = times[len(times)-maxWindowEntries:]
	}
	return times
}

func countWithin(times []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
