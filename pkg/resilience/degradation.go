package resilience

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
)

// DegradationLevel is the ordered capability ladder for a service
type DegradationLevel int

const (
	// LevelFullService - the service answers normally
	LevelFullService DegradationLevel = iota
	// LevelCachedData - answers come from cached data
	LevelCachedData
	// LevelSimplifiedResponse - answers are reduced, canned responses
	LevelSimplifiedResponse
	// LevelMinimalResponse - only minimal stubs are served
	LevelMinimalResponse
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelFullService:
		return "FULL_SERVICE"
	case LevelCachedData:
		return "CACHED_DATA"
	case LevelSimplifiedResponse:
		return "SIMPLIFIED_RESPONSE"
	case LevelMinimalResponse:
		return "MINIMAL_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// ServiceMetrics holds the per-service counters the ladder is driven by
type ServiceMetrics struct {
	TotalRequests        uint64    `json:"total_requests"`
	FailedRequests       uint64    `json:"failed_requests"`
	SuccessfulRequests   uint64    `json:"successful_requests"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	ErrorRate            float64   `json:"error_rate"`
	LastError            time.Time `json:"last_error"`
	LastSuccess          time.Time `json:"last_success"`
}

// FallbackData is a cached payload usable as a substitute response
type FallbackData struct {
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// ServiceReport is one entry of the manager's snapshot
type ServiceReport struct {
	Service string           `json:"service"`
	Level   string           `json:"level"`
	Metrics ServiceMetrics   `json:"metrics"`
}

// LevelNotifier receives rate-limited level change notifications
type LevelNotifier interface {
	LevelChanged(service string, from, to DegradationLevel, m ServiceMetrics, reason string)
}

// DegradationConfig holds configuration for the degradation manager
type DegradationConfig struct {
	// DegradationThreshold is the consecutive-failure count that starts
	// degrading; 2x selects SIMPLIFIED_RESPONSE, 3x MINIMAL_RESPONSE
	DegradationThreshold int
	// RecoveryThreshold is the consecutive-success count that steps the
	// ladder down one rung
	RecoveryThreshold int
	// FallbackTTL bounds cached fallback payloads
	FallbackTTL time.Duration
	// FallbackCacheSize caps the payload store; oldest entries evicted first
	FallbackCacheSize int
	// NotifyInterval is the minimum time between notifications per service
	NotifyInterval time.Duration
}

type serviceEntry struct {
	level      DegradationLevel
	metrics    ServiceMetrics
	lastNotify time.Time
}

// DegradationManager tracks success/failure streaks per named service and
// derives its capability level. Each service's bucket is guarded by the
// manager's single mutex; no cross-instance locks exist.
type DegradationManager struct {
	config   DegradationConfig
	notifier LevelNotifier

	mutex    sync.RWMutex
	services map[string]*serviceEntry

	fallbacks *expirable.LRU[string, FallbackData]

	logger  *logging.Logger
	metrics *metrics.Resilience
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig, notifier LevelNotifier, logger *logging.Logger, m *metrics.Resilience) *DegradationManager {
	if config.DegradationThreshold <= 0 {
		config.DegradationThreshold = 10
	}
	if config.RecoveryThreshold <= 0 {
		config.RecoveryThreshold = 3
	}
	if config.FallbackTTL <= 0 {
		config.FallbackTTL = time.Hour
	}
	if config.FallbackCacheSize <= 0 {
		config.FallbackCacheSize = 256
	}
	if config.NotifyInterval <= 0 {
		config.NotifyInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &DegradationManager{
		config:    config,
		notifier:  notifier,
		services:  make(map[string]*serviceEntry),
		fallbacks: expirable.NewLRU[string, FallbackData](config.FallbackCacheSize, nil, config.FallbackTTL),
		logger:    logger,
		metrics:   m,
	}
}

// Register adds a service at the given initial level
func (dm *DegradationManager) Register(service string, initial DegradationLevel) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[service] = &serviceEntry{level: initial}
	dm.metrics.ObserveDegradationLevel(service, int(initial))
	dm.logger.Debug("Service registered for degradation tracking",
		"degraded_service", service,
		"level", initial.String(),
	)
}

// Evaluate records one call outcome for the service and returns its
// (possibly updated) degradation level
func (dm *DegradationManager) Evaluate(service, operation string, success bool) DegradationLevel {
	dm.mutex.Lock()

	entry, ok := dm.services[service]
	if !ok {
		entry = &serviceEntry{level: LevelFullService}
		dm.services[service] = entry
	}

	now := time.Now()
	m := &entry.metrics
	m.TotalRequests++
	if success {
		m.SuccessfulRequests++
		m.ConsecutiveSuccesses++
		m.ConsecutiveFailures = 0
		m.LastSuccess = now
	} else {
		m.FailedRequests++
		m.ConsecutiveFailures++
		m.ConsecutiveSuccesses = 0
		m.LastError = now
	}
	m.ErrorRate = float64(m.FailedRequests) / float64(m.TotalRequests)

	from := entry.level
	to := dm.nextLevel(entry)

	var notify func()
	if to != from {
		entry.level = to
		if to == LevelFullService {
			entry.metrics = ServiceMetrics{}
		}
		notify = dm.levelChangedLocked(service, entry, from, to, "evaluated outcome")
	}
	dm.mutex.Unlock()

	// Notification runs outside the lock so a slow notifier cannot stall
	// concurrent evaluations.
	if notify != nil {
		notify()
	}
	return to
}

// nextLevel must be called with the mutex held. The failure condition is
// checked first and takes precedence over recovery.
func (dm *DegradationManager) nextLevel(entry *serviceEntry) DegradationLevel {
	t := dm.config.DegradationThreshold
	m := &entry.metrics

	switch {
	case m.ConsecutiveFailures >= 3*t:
		return LevelMinimalResponse
	case m.ConsecutiveFailures >= 2*t:
		return LevelSimplifiedResponse
	case m.ConsecutiveFailures >= t:
		return LevelCachedData
	case m.ConsecutiveSuccesses >= dm.config.RecoveryThreshold:
		if entry.level > LevelFullService {
			// One rung per recovery streak, not a full reset
			m.ConsecutiveSuccesses = 0
			return entry.level - 1
		}
		return entry.level
	default:
		return entry.level
	}
}

// levelChangedLocked updates gauges and prepares the rate-limited
// notification callback; must be called with the mutex held
func (dm *DegradationManager) levelChangedLocked(service string, entry *serviceEntry, from, to DegradationLevel, reason string) func() {
	dm.metrics.ObserveDegradationLevel(service, int(to))
	dm.metrics.ObserveLevelChange(service, to.String())

	dm.logger.Info("Degradation level changed",
		"degraded_service", service,
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
	)

	if dm.notifier == nil {
		return nil
	}

	now := time.Now()
	if !entry.lastNotify.IsZero() && now.Sub(entry.lastNotify) < dm.config.NotifyInterval {
		return nil
	}
	entry.lastNotify = now

	snapshot := entry.metrics
	notifier := dm.notifier
	return func() {
		notifier.LevelChanged(service, from, to, snapshot, reason)
	}
}

// CurrentLevel returns the service's level, FULL_SERVICE when untracked
func (dm *DegradationManager) CurrentLevel(service string) DegradationLevel {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if entry, ok := dm.services[service]; ok {
		return entry.level
	}
	return LevelFullService
}

// Metrics returns a copy of the service's counters
func (dm *DegradationManager) Metrics(service string) (ServiceMetrics, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if entry, ok := dm.services[service]; ok {
		return entry.metrics, true
	}
	return ServiceMetrics{}, false
}

// Report returns a snapshot of every tracked service
func (dm *DegradationManager) Report() []ServiceReport {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	reports := make([]ServiceReport, 0, len(dm.services))
	for name, entry := range dm.services {
		reports = append(reports, ServiceReport{
			Service: name,
			Level:   entry.level.String(),
			Metrics: entry.metrics,
		})
	}
	return reports
}

// ForceLevel pins a service to the given level, bypassing the ladder.
// The notification is sent regardless of the rate limit.
func (dm *DegradationManager) ForceLevel(service string, level DegradationLevel, reason string) {
	dm.mutex.Lock()

	entry, ok := dm.services[service]
	if !ok {
		entry = &serviceEntry{level: LevelFullService}
		dm.services[service] = entry
	}

	from := entry.level
	entry.level = level
	if level == LevelFullService {
		entry.metrics = ServiceMetrics{}
	}
	entry.lastNotify = time.Now()

	dm.metrics.ObserveDegradationLevel(service, int(level))
	dm.metrics.ObserveLevelChange(service, level.String())
	dm.logger.Warn("Degradation level forced",
		"degraded_service", service,
		"from", from.String(),
		"to", level.String(),
		"reason", reason,
	)

	snapshot := entry.metrics
	notifier := dm.notifier
	dm.mutex.Unlock()

	if notifier != nil && from != level {
		notifier.LevelChanged(service, from, level, snapshot, reason)
	}
}

// StoreFallback caches a payload usable as a substitute for (service, operation)
func (dm *DegradationManager) StoreFallback(service, operation string, data interface{}, source string) {
	dm.fallbacks.Add(fallbackKey(service, operation), FallbackData{
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	})
}

// Fallback returns the cached payload for (service, operation), if any.
// Expired entries are dropped by the TTL-bounded store.
func (dm *DegradationManager) Fallback(service, operation string) (FallbackData, bool) {
	return dm.fallbacks.Get(fallbackKey(service, operation))
}

func fallbackKey(service, operation string) string {
	return service + ":" + operation
}
