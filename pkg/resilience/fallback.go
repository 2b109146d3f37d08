package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
)

// DependencyType selects which fallback strategy handles a failed call
type DependencyType string

const (
	// DependencyDatabase - document stores and relational databases
	DependencyDatabase DependencyType = "database"
	// DependencyAuth - OAuth and identity providers
	DependencyAuth DependencyType = "auth"
	// DependencyTool - LLM, OCR and other tool/resource backends
	DependencyTool DependencyType = "tool"
	// DependencyGeneric - catch-all for everything else
	DependencyGeneric DependencyType = "generic"
)

// ServiceContext identifies the failed call for fallback synthesis
type ServiceContext struct {
	Service    string            `json:"service"`
	Dependency DependencyType    `json:"dependency"`
	Operation  string            `json:"operation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// FallbackResult is the substitute outcome a strategy produced.
// Success is false only when nothing, not even a stub, was available.
type FallbackResult struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Source   string      `json:"source"`
	Strategy string      `json:"strategy"`
	Fallback bool        `json:"fallback"`
	Err      error       `json:"-"`
}

// FallbackStrategy synthesizes a substitute result for one dependency type
type FallbackStrategy interface {
	Name() string
	Handle(ctx context.Context, sctx ServiceContext, op Operation) FallbackResult
}

// FallbackStrategyManager dispatches failed calls to a dependency-type
// specific strategy. A fallback error never propagates as a hard failure
// while the generic stub can still be synthesized.
type FallbackStrategyManager struct {
	strategies  map[DependencyType]FallbackStrategy
	generic     FallbackStrategy
	degradation *DegradationManager
	logger      *logging.Logger
	metrics     *metrics.Resilience
}

// NewFallbackStrategyManager creates a manager with the built-in strategies
func NewFallbackStrategyManager(degradation *DegradationManager, logger *logging.Logger, m *metrics.Resilience) *FallbackStrategyManager {
	if logger == nil {
		logger = logging.GetLogger()
	}

	fsm := &FallbackStrategyManager{
		strategies:  make(map[DependencyType]FallbackStrategy),
		degradation: degradation,
		logger:      logger,
		metrics:     m,
	}

	fsm.generic = &genericStrategy{base: base{degradation: degradation}}
	fsm.strategies[DependencyDatabase] = &databaseStrategy{base: base{degradation: degradation}}
	fsm.strategies[DependencyAuth] = &authStrategy{base: base{degradation: degradation}}
	fsm.strategies[DependencyTool] = &toolStrategy{base: base{degradation: degradation}}
	fsm.strategies[DependencyGeneric] = fsm.generic

	return fsm
}

// RegisterStrategy replaces the strategy for a dependency type
func (fsm *FallbackStrategyManager) RegisterStrategy(dep DependencyType, strategy FallbackStrategy) {
	fsm.strategies[dep] = strategy
}

// HandleFallback produces a substitute result for a call that ultimately
// failed. The strategy retries the real operation once; on failure it shapes
// the response by the service's current degradation level.
func (fsm *FallbackStrategyManager) HandleFallback(ctx context.Context, dep DependencyType, sctx ServiceContext, op Operation) (result FallbackResult) {
	strategy, ok := fsm.strategies[dep]
	if !ok {
		strategy = fsm.generic
	}

	defer func() {
		if r := recover(); r != nil {
			fsm.logger.Error("Fallback strategy panicked, using generic stub",
				"dependency", string(dep),
				"strategy", strategy.Name(),
				"panic", fmt.Sprintf("%v", r),
			)
			result = fsm.generic.Handle(ctx, sctx, nil)
			fsm.observe(ctx, sctx, result)
		}
	}()

	result = strategy.Handle(ctx, sctx, op)
	if !result.Success && strategy != fsm.generic {
		result = fsm.generic.Handle(ctx, sctx, nil)
	}

	fsm.observe(ctx, sctx, result)
	return result
}

func (fsm *FallbackStrategyManager) observe(ctx context.Context, sctx ServiceContext, result FallbackResult) {
	fsm.metrics.ObserveFallback(string(sctx.Dependency), result.Strategy, result.Source)
	fsm.logger.LogFallbackEvent(ctx, string(sctx.Dependency), sctx.Operation, result.Strategy, result.Source, result.Success)
}

// base carries the shared retry-once-then-shape flow of every strategy
type base struct {
	degradation *DegradationManager
}

// tryLive re-attempts the real operation once, caching a success for
// future fallback use
func (b *base) tryLive(ctx context.Context, sctx ServiceContext, op Operation, strategy string) (FallbackResult, bool) {
	if op == nil {
		return FallbackResult{}, false
	}

	result, err := op(ctx)
	if err != nil {
		return FallbackResult{Err: err}, false
	}

	b.degradation.StoreFallback(sctx.Service, sctx.Operation, result, "live")
	return FallbackResult{
		Success:  true,
		Data:     result,
		Source:   "live",
		Strategy: strategy,
	}, true
}

// cached returns the stored payload for the call, if present
func (b *base) cached(sctx ServiceContext, strategy string) (FallbackResult, bool) {
	data, ok := b.degradation.Fallback(sctx.Service, sctx.Operation)
	if !ok {
		return FallbackResult{}, false
	}
	return FallbackResult{
		Success:  true,
		Data:     data.Data,
		Source:   "cache",
		Strategy: strategy,
		Fallback: true,
	}, true
}

func (b *base) level(sctx ServiceContext) DegradationLevel {
	return b.degradation.CurrentLevel(sctx.Service)
}

func queuedAck(sctx ServiceContext, strategy string) FallbackResult {
	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"status":    "queued",
			"operation": sctx.Operation,
			"message":   "request accepted and queued for processing once the service recovers",
			"queued_at": time.Now().UTC().Format(time.RFC3339),
		},
		Source:   "queued",
		Strategy: strategy,
		Fallback: true,
	}
}

// databaseStrategy serves document-store and database failures
type databaseStrategy struct {
	base
}

func (s *databaseStrategy) Name() string { return "database" }

func (s *databaseStrategy) Handle(ctx context.Context, sctx ServiceContext, op Operation) FallbackResult {
	if result, ok := s.tryLive(ctx, sctx, op, s.Name()); ok {
		return result
	}

	switch s.level(sctx) {
	case LevelFullService:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return queuedAck(sctx, s.Name())
	case LevelCachedData:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return s.simplified(sctx)
	case LevelSimplifiedResponse:
		return s.simplified(sctx)
	default:
		return s.minimal(sctx)
	}
}

func (s *databaseStrategy) simplified(sctx ServiceContext) FallbackResult {
	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"status":  "degraded",
			"records": []interface{}{},
			"message": "data store degraded, returning an empty result set",
		},
		Source:   "simplified",
		Strategy: s.Name(),
		Fallback: true,
	}
}

func (s *databaseStrategy) minimal(sctx ServiceContext) FallbackResult {
	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"status": "unavailable",
		},
		Source:   "minimal",
		Strategy: s.Name(),
		Fallback: true,
	}
}

// authStrategy serves OAuth/identity provider failures
type authStrategy struct {
	base
}

func (s *authStrategy) Name() string { return "auth" }

func (s *authStrategy) Handle(ctx context.Context, sctx ServiceContext, op Operation) FallbackResult {
	if result, ok := s.tryLive(ctx, sctx, op, s.Name()); ok {
		return result
	}

	switch s.level(sctx) {
	case LevelFullService:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return queuedAck(sctx, s.Name())
	case LevelCachedData:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return s.simplified(sctx)
	case LevelSimplifiedResponse:
		return s.simplified(sctx)
	default:
		return FallbackResult{
			Success: true,
			Data: map[string]interface{}{
				"session": "anonymous",
				"scopes":  []string{},
			},
			Source:   "minimal",
			Strategy: s.Name(),
			Fallback: true,
		}
	}
}

func (s *authStrategy) simplified(sctx ServiceContext) FallbackResult {
	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"session": "read_only",
			"scopes":  []string{"read"},
			"message": "identity provider degraded, granting read-only access",
		},
		Source:   "simplified",
		Strategy: s.Name(),
		Fallback: true,
	}
}

// toolStrategy serves LLM/OCR tool and resource backend failures
type toolStrategy struct {
	base
}

func (s *toolStrategy) Name() string { return "tool" }

func (s *toolStrategy) Handle(ctx context.Context, sctx ServiceContext, op Operation) FallbackResult {
	if result, ok := s.tryLive(ctx, sctx, op, s.Name()); ok {
		return result
	}

	switch s.level(sctx) {
	case LevelFullService:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return queuedAck(sctx, s.Name())
	case LevelCachedData:
		if result, ok := s.cached(sctx, s.Name()); ok {
			return result
		}
		return s.simplified(sctx)
	case LevelSimplifiedResponse:
		return s.simplified(sctx)
	default:
		return FallbackResult{
			Success: true,
			Data: map[string]interface{}{
				"result": nil,
				"status": "unavailable",
			},
			Source:   "minimal",
			Strategy: s.Name(),
			Fallback: true,
		}
	}
}

func (s *toolStrategy) simplified(sctx ServiceContext) FallbackResult {
	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"result":  fmt.Sprintf("The %s service is temporarily degraded. A full answer will be available once it recovers.", sctx.Service),
			"partial": true,
		},
		Source:   "simplified",
		Strategy: s.Name(),
		Fallback: true,
	}
}

// genericStrategy is the catch-all; it can always synthesize a stub
type genericStrategy struct {
	base
}

func (s *genericStrategy) Name() string { return "generic" }

func (s *genericStrategy) Handle(ctx context.Context, sctx ServiceContext, op Operation) FallbackResult {
	if result, ok := s.tryLive(ctx, sctx, op, s.Name()); ok {
		return result
	}

	if result, ok := s.cached(sctx, s.Name()); ok {
		return result
	}

	if s.level(sctx) == LevelFullService {
		return queuedAck(sctx, s.Name())
	}

	return FallbackResult{
		Success: true,
		Data: map[string]interface{}{
			"status":  "degraded",
			"message": fmt.Sprintf("%s is temporarily unavailable", sctx.Service),
		},
		Source:   "minimal",
		Strategy: s.Name(),
		Fallback: true,
	}
}
