package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Resilience.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Resilience.Breaker.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Breaker.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Resilience.Breaker.CacheTTL)

	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Resilience.Retry.ExponentialBase)
	assert.True(t, cfg.Resilience.Retry.Jitter)

	assert.Equal(t, 10, cfg.Resilience.Degradation.DegradationThreshold)
	assert.Equal(t, 3, cfg.Resilience.Degradation.RecoveryThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("RETRY_JITTER", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Resilience.Breaker.FailureThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.Retry.BaseDelay)
	assert.False(t, cfg.Resilience.Retry.Jitter)
}

func TestValidate_Rejects(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Resilience.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg.Resilience.Retry.MaxAttempts = 3
	cfg.Server.Port = -1
	assert.Error(t, cfg.Validate())
}
