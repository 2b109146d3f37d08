package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Resilience ResilienceConfig `json:"resilience"`
}

// ServerConfig contains the ops HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// ResilienceConfig groups the recognized resilience options.
// Every field has a default; env vars override.
type ResilienceConfig struct {
	Breaker     BreakerConfig     `json:"breaker"`
	Retry       RetryConfig       `json:"retry"`
	Degradation DegradationConfig `json:"degradation"`
}

// BreakerConfig contains circuit breaker defaults
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
	TimeWindow       time.Duration `json:"time_window"`
	HalfOpenDuration time.Duration `json:"half_open_duration"`
	CacheTTL         time.Duration `json:"cache_ttl"`
	CacheSize        int           `json:"cache_size"`
}

// RetryConfig contains retry policy defaults
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	BaseDelay       time.Duration `json:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay"`
	ExponentialBase float64       `json:"exponential_base"`
	Jitter          bool          `json:"jitter"`
	JitterRange     float64       `json:"jitter_range"`
}

// DegradationConfig contains graceful degradation defaults
type DegradationConfig struct {
	DegradationThreshold int           `json:"degradation_threshold"`
	RecoveryThreshold    int           `json:"recovery_threshold"`
	FallbackTTL          time.Duration `json:"fallback_ttl"`
	FallbackCacheSize    int           `json:"fallback_cache_size"`
	NotifyInterval       time.Duration `json:"notify_interval"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Resilience: ResilienceConfig{
			Breaker: BreakerConfig{
				FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 2),
				Timeout:          getEnvAsDuration("BREAKER_TIMEOUT", 60*time.Second),
				TimeWindow:       getEnvAsDuration("BREAKER_TIME_WINDOW", 60*time.Second),
				HalfOpenDuration: getEnvAsDuration("BREAKER_HALF_OPEN_DURATION", 30*time.Second),
				CacheTTL:         getEnvAsDuration("BREAKER_CACHE_TTL", 0),
				CacheSize:        getEnvAsInt("BREAKER_CACHE_SIZE", 128),
			},
			Retry: RetryConfig{
				MaxAttempts:     getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
				BaseDelay:       getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
				MaxDelay:        getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
				ExponentialBase: getEnvAsFloat("RETRY_EXPONENTIAL_BASE", 2.0),
				Jitter:          getEnvAsBool("RETRY_JITTER", true),
				JitterRange:     getEnvAsFloat("RETRY_JITTER_RANGE", 0.1),
			},
			Degradation: DegradationConfig{
				DegradationThreshold: getEnvAsInt("DEGRADATION_THRESHOLD", 10),
				RecoveryThreshold:    getEnvAsInt("RECOVERY_THRESHOLD", 3),
				FallbackTTL:          getEnvAsDuration("FALLBACK_TTL", time.Hour),
				FallbackCacheSize:    getEnvAsInt("FALLBACK_CACHE_SIZE", 256),
				NotifyInterval:       getEnvAsDuration("DEGRADATION_NOTIFY_INTERVAL", 5*time.Minute),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Resilience.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	if c.Resilience.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker success threshold must be positive")
	}
	if c.Resilience.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Resilience.Retry.ExponentialBase < 1 {
		return fmt.Errorf("retry exponential base must be >= 1")
	}
	if c.Resilience.Degradation.DegradationThreshold <= 0 {
		return fmt.Errorf("degradation threshold must be positive")
	}
	if c.Resilience.Degradation.RecoveryThreshold <= 0 {
		return fmt.Errorf("recovery threshold must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
