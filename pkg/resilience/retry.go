package resilience

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/docassist/docassist-platform/pkg/errors"
	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
)

// maxAttemptLog bounds the per-policy attempt log
const maxAttemptLog = 512

// RetryConfig holds configuration for a retry policy
type RetryConfig struct {
	// Name of the policy for logging/metrics
	Name string
	// MaxAttempts is the total attempt budget, first call included
	MaxAttempts int
	// BaseDelay seeds the exponential backoff
	BaseDelay time.Duration
	// MaxDelay caps the computed delay
	MaxDelay time.Duration
	// ExponentialBase is the backoff multiplier
	ExponentialBase float64
	// Jitter perturbs each delay by a uniform factor in ±JitterRange
	Jitter      bool
	JitterRange float64
	// RetryableKinds always retry (within the attempt budget)
	RetryableKinds []errors.Kind
	// NonRetryableKinds stop retrying immediately
	NonRetryableKinds []errors.Kind
	// Retryable overrides kind matching with an arbitrary predicate
	Retryable func(error) bool
	// OnRetry is called before each inter-attempt wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		ExponentialBase:   2.0,
		Jitter:            true,
		JitterRange:       0.1,
		RetryableKinds:    []errors.Kind{errors.KindTimeout, errors.KindExternal, errors.KindUnavailable, errors.KindRateLimit},
		NonRetryableKinds: []errors.Kind{errors.KindValidation, errors.KindAuthentication, errors.KindAuthorization, errors.KindNotFound, errors.KindConflict},
	}
}

// Attempt is one entry of the attempt log
type Attempt struct {
	Number  int           `json:"number"`
	Start   time.Time     `json:"start"`
	Delay   time.Duration `json:"delay"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// RetryStats aggregates the attempt log
type RetryStats struct {
	Name        string        `json:"name"`
	Attempts    int           `json:"attempts"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"success_rate"`
	MeanDelay   time.Duration `json:"mean_delay"`
}

// Outcome carries the result of a non-blocking execution
type Outcome struct {
	Result interface{}
	Err    error
}

// RetryPolicy wraps an operation in a bounded-attempt retry loop with
// exponential backoff and jitter.
type RetryPolicy struct {
	config    RetryConfig
	retryable func(error) bool

	mutex    sync.Mutex
	attempts []Attempt

	logger  *logging.Logger
	metrics *metrics.Resilience
}

// NewRetryPolicy creates a new retry policy with the given configuration
func NewRetryPolicy(config RetryConfig, logger *logging.Logger, m *metrics.Resilience) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.ExponentialBase < 1 {
		config.ExponentialBase = 2.0
	}
	if config.JitterRange <= 0 {
		config.JitterRange = 0.1
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	p := &RetryPolicy{
		config:  config,
		logger:  logger,
		metrics: m,
	}
	p.retryable = p.buildClassifier()
	return p
}

func (p *RetryPolicy) buildClassifier() func(error) bool {
	if p.config.Retryable != nil {
		return p.config.Retryable
	}

	non := make(map[errors.Kind]struct{}, len(p.config.NonRetryableKinds))
	for _, k := range p.config.NonRetryableKinds {
		non[k] = struct{}{}
	}
	yes := make(map[errors.Kind]struct{}, len(p.config.RetryableKinds))
	for _, k := range p.config.RetryableKinds {
		yes[k] = struct{}{}
	}

	return func(err error) bool {
		kind := errors.KindOf(err)
		if _, ok := non[kind]; ok {
			return false
		}
		if _, ok := yes[kind]; ok {
			return true
		}
		// An open breaker will not recover within one retry budget
		if IsCircuitBreakerError(err) {
			return false
		}
		// Unclassified errors retry by default
		return true
	}
}

// Name returns the policy name
func (p *RetryPolicy) Name() string {
	return p.config.Name
}

// Execute runs the operation, retrying eligible failures up to MaxAttempts.
// The inter-attempt wait respects ctx cancellation. After exhaustion the
// last underlying error is returned unchanged.
func (p *RetryPolicy) Execute(ctx context.Context, op Operation) (interface{}, error) {
	var lastErr error
	var delay time.Duration

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		start := time.Now()
		result, err := op(ctx)
		elapsed := time.Since(start)

		p.record(Attempt{
			Number:  attempt,
			Start:   start,
			Delay:   delay,
			Success: err == nil,
			Error:   errString(err),
			Elapsed: elapsed,
		})
		p.metrics.ObserveRetryAttempt(p.config.Name, err == nil)

		if err == nil {
			if attempt > 1 {
				p.logger.Info("Operation succeeded after retry",
					"policy", p.config.Name,
					"attempt", attempt,
				)
			}
			return result, nil
		}

		lastErr = err

		if !p.retryable(err) {
			p.logger.Debug("Error is not retryable, stopping",
				"policy", p.config.Name,
				"error", err.Error(),
				"attempt", attempt,
			)
			return nil, err
		}

		if attempt == p.config.MaxAttempts {
			break
		}

		delay = p.delayFor(attempt)

		p.logger.Debug("Operation failed, retrying",
			"policy", p.config.Name,
			"error", err.Error(),
			"attempt", attempt,
			"max_attempts", p.config.MaxAttempts,
			"delay", delay,
		)

		if p.config.OnRetry != nil {
			p.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.metrics.ObserveRetryExhausted(p.config.Name)
	p.logger.Error("Operation failed after all retry attempts",
		"policy", p.config.Name,
		"error", lastErr.Error(),
		"attempts", p.config.MaxAttempts,
	)

	return nil, lastErr
}

// Go runs Execute in its own goroutine and never blocks the caller.
// The returned channel receives exactly one Outcome.
func (p *RetryPolicy) Go(ctx context.Context, op Operation) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		result, err := p.Execute(ctx, op)
		ch <- Outcome{Result: result, Err: err}
	}()
	return ch
}

// delayFor computes the wait after the given failed attempt. The wait after
// the first attempt is zero; backoff starts from the second failure.
func (p *RetryPolicy) delayFor(failedAttempt int) time.Duration {
	if failedAttempt <= 1 {
		return 0
	}

	delay := float64(p.config.BaseDelay) * math.Pow(p.config.ExponentialBase, float64(failedAttempt-1))
	if delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}

	if p.config.Jitter {
		jitter := (rand.Float64()*2 - 1) * p.config.JitterRange * delay
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}

func (p *RetryPolicy) record(a Attempt) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.attempts = append(p.attempts, a)
	if len(p.attempts) > maxAttemptLog {
		p.attempts = p.attempts[len(p.attempts)-maxAttemptLog:]
	}
}

// Stats aggregates the attempt log
func (p *RetryPolicy) Stats() RetryStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats := RetryStats{Name: p.config.Name, Attempts: len(p.attempts)}
	var delaySum time.Duration
	var delayed int

	for _, a := range p.attempts {
		if a.Success {
			stats.Successes++
		}
		if a.Number > 1 {
			delaySum += a.Delay
			delayed++
		}
	}

	if stats.Attempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Attempts)
	}
	if delayed > 0 {
		stats.MeanDelay = delaySum / time.Duration(delayed)
	}
	return stats
}

// ResetStats clears the attempt log, restoring the policy to its
// freshly-constructed state
func (p *RetryPolicy) ResetStats() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.attempts = nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
