package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := ParseLevel(tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONOutput(t *testing.T) {
	// Given a JSON logger writing to a buffer
	var buf bytes.Buffer
	logger, err := New(Config{Level: LogLevelDebug, Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	// When logging with component and resource context
	WithResource(WithComponent(logger, "poller"), "feed-1").Info("poll observed", zap.Int("interval", 30))

	// Then the entry is structured JSON with all fields
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "poll observed", entry["msg"])
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "poller", entry["logger"])
	assert.Equal(t, "feed-1", entry["resource_id"])
	assert.Equal(t, float64(30), entry["interval"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LogLevelWarn, Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LogLevelInfo, Format: FormatConsole, Output: &buf})
	require.NoError(t, err)

	logger.Info("hello")

	assert.True(t, strings.Contains(buf.String(), "INFO"))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Output: &buf})
	require.NoError(t, err)

	LogError(logger, "save_models", errors.New("disk full"), zap.String("resource_id", "feed-1"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "save_models", entry["operation"])
	assert.Equal(t, "disk full", entry["error"])
}
