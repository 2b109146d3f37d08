package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()

	logger, err := NewLogger(&Config{
		Level:       "debug",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "test-service",
		Version:     "test",
	})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	return logger, buf
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(&Config{Level: "nope", Format: "json", Output: "stdout"})
	require.Error(t, err)
}

func TestLogger_KeyValuePairs(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.Info("breaker tripped", "breaker", "llm-provider", "failures", 5)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "breaker tripped", entry["message"])
	assert.Equal(t, "llm-provider", entry["breaker"])
	assert.Equal(t, float64(5), entry["failures"])
	assert.Equal(t, "test-service", entry["service"])
}

func TestLogger_WithContext(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	ctx := WithCorrelationID(context.Background(), "abc-123")
	logger.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry["correlation_id"])
}

func TestLogger_FallbackEvent(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.LogFallbackEvent(context.Background(), "document-db", "search", "database", "cache", true)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "document-db", entry["dependency"])
	assert.Equal(t, "cache", entry["source"])
	assert.Equal(t, true, entry["success"])
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
