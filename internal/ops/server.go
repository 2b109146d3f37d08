package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docassist/docassist-platform/pkg/config"
	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/resilience"
)

// Version reported on the health endpoint
const Version = "1.0.0"

// Server exposes the operational surface: health, Prometheus metrics, and
// the resilience report with its manual override endpoints.
type Server struct {
	config   *config.Config
	registry *resilience.Registry
	promReg  *prometheus.Registry
	logger   *logging.Logger
	http     *http.Server
}

// NewServer creates the ops server. The prometheus registry may be nil, in
// which case /metrics serves an empty exposition.
func NewServer(cfg *config.Config, registry *resilience.Registry, promReg *prometheus.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	s := &Server{
		config:   cfg,
		registry: registry,
		promReg:  promReg,
		logger:   logger,
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Router creates and configures the ops router
func (s *Server) Router() *gin.Engine {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(s.logger))
	router.Use(RecoveryMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		res := v1.Group("/resilience")
		{
			res.GET("", s.handleReport)
			res.GET("/services/:name", s.handleService)
			res.POST("/services/:name/level", s.handleForceLevel)
			res.POST("/breakers/:name/reset", s.handleBreakerReset)
			res.POST("/reset", s.handleResetAll)
		}
	}
	return router
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	SuccessResponse(c, s.registry.Report())
}

func (s *Server) handleService(c *gin.Context) {
	name := c.Param("name")
	metrics, ok := s.registry.Degradation().Metrics(name)
	if !ok {
		NotFoundResponse(c, fmt.Sprintf("service '%s' is not tracked", name))
		return
	}
	SuccessResponse(c, gin.H{
		"service": name,
		"level":   s.registry.Degradation().CurrentLevel(name).String(),
		"metrics": metrics,
	})
}

// forceLevelRequest is the body of the manual override endpoint
type forceLevelRequest struct {
	Level  string `json:"level" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) handleForceLevel(c *gin.Context) {
	name := c.Param("name")

	var req forceLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "request body must include a 'level' field")
		return
	}

	level, ok := parseLevel(req.Level)
	if !ok {
		BadRequestResponse(c, fmt.Sprintf("unknown degradation level '%s'", req.Level))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual override"
	}
	s.registry.Degradation().ForceLevel(name, level, reason)
	SuccessResponse(c, gin.H{
		"service": name,
		"level":   level.String(),
	})
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	name := c.Param("name")
	s.registry.Breaker(name).Reset()
	SuccessResponse(c, gin.H{
		"breaker": name,
		"state":   resilience.StateClosed.String(),
	})
}

func (s *Server) handleResetAll(c *gin.Context) {
	s.registry.ResetAll()
	SuccessResponse(c, gin.H{"reset": true})
}

func parseLevel(s string) (resilience.DegradationLevel, bool) {
	switch s {
	case "FULL_SERVICE":
		return resilience.LevelFullService, true
	case "CACHED_DATA":
		return resilience.LevelCachedData, true
	case "SIMPLIFIED_RESPONSE":
		return resilience.LevelSimplifiedResponse, true
	case "MINIMAL_RESPONSE":
		return resilience.LevelMinimalResponse, true
	}
	return resilience.LevelFullService, false
}

// Start begins serving. It blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting ops server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains outstanding requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ops server")
	return s.http.Shutdown(ctx)
}
