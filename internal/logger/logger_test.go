package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

// Feature: logging, Property 1: Every entry is a JSON object with level, timestamp and message
func TestProperty_LogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("entries carry level, timestamp, message and service", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			logger := NewJSON(&buf, zapcore.DebugLevel)

			switch level {
			case "debug":
				logger.Debug(message)
			case "info":
				logger.Info(message)
			case "warn":
				logger.Warn(message)
			default:
				logger.Error(message)
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			_, hasTimestamp := entry["timestamp"]
			return entry["level"] == level &&
				entry["message"] == message &&
				entry["service"] == service &&
				hasTimestamp
		},
		gen.AnyString(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, zapcore.WarnLevel)

	logger.Info("dropped")
	logger.Warn("Stock clamped at zero", zap.String("product_id", "tee"), zap.Int("current", 1), zap.Int("requested", 3))

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "tee", entries[0]["product_id"])
	assert.EqualValues(t, 3, entries[0]["requested"])
}

func TestErrorsIncludeStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, zapcore.DebugLevel).Named("executor")

	logger.Error("Stock adjustment failed", zap.Error(errors.New("boom")))

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, "executor", entries[0]["logger"])
	assert.Contains(t, entries[0], "stacktrace")
}

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := New(env)
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}
}
