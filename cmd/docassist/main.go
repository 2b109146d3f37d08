package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/docassist/docassist-platform/internal/ops"
	"github.com/docassist/docassist-platform/pkg/config"
	"github.com/docassist/docassist-platform/pkg/logging"
	"github.com/docassist/docassist-platform/pkg/metrics"
	"github.com/docassist/docassist-platform/pkg/resilience"
)

func main() {
	// Load .env file if present (development convenience)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "docassist",
		Version:     ops.Version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	resilienceMetrics := metrics.NewResilience(promReg, "docassist")

	// Level changes surface as alerts through the logging handler
	alertManager := resilience.NewAlertManager(logger)
	alertManager.AddHandler(resilience.NewLoggingAlertHandler(logger))

	registry := resilience.NewRegistry(resilience.RegistryConfig{
		BreakerDefaults: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Resilience.Breaker.SuccessThreshold,
			Timeout:          cfg.Resilience.Breaker.Timeout,
			TimeWindow:       cfg.Resilience.Breaker.TimeWindow,
			HalfOpenDuration: cfg.Resilience.Breaker.HalfOpenDuration,
			CacheTTL:         cfg.Resilience.Breaker.CacheTTL,
			CacheSize:        cfg.Resilience.Breaker.CacheSize,
		},
		RetryDefaults: resilience.RetryConfig{
			MaxAttempts:     cfg.Resilience.Retry.MaxAttempts,
			BaseDelay:       cfg.Resilience.Retry.BaseDelay,
			MaxDelay:        cfg.Resilience.Retry.MaxDelay,
			ExponentialBase: cfg.Resilience.Retry.ExponentialBase,
			Jitter:          cfg.Resilience.Retry.Jitter,
			JitterRange:     cfg.Resilience.Retry.JitterRange,
		},
		Degradation: resilience.DegradationConfig{
			DegradationThreshold: cfg.Resilience.Degradation.DegradationThreshold,
			RecoveryThreshold:    cfg.Resilience.Degradation.RecoveryThreshold,
			FallbackTTL:          cfg.Resilience.Degradation.FallbackTTL,
			FallbackCacheSize:    cfg.Resilience.Degradation.FallbackCacheSize,
			NotifyInterval:       cfg.Resilience.Degradation.NotifyInterval,
		},
		Notifier: resilience.NewAlertNotifier(alertManager),
		Logger:   logger,
		Metrics:  resilienceMetrics,
	})

	// Track the downstream dependencies this service protects
	degradation := registry.Degradation()
	degradation.Register("llm-provider", resilience.LevelFullService)
	degradation.Register("ocr-backend", resilience.LevelFullService)
	degradation.Register("document-db", resilience.LevelFullService)
	degradation.Register("auth-provider", resilience.LevelFullService)

	server := ops.NewServer(cfg, registry, promReg, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Ops server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("docassist platform started",
		"addr", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
