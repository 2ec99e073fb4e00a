package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogHandler(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		out := new(bytes.Buffer)
		logger := slog.New(newLogHandler(out, HandlerTypeJSON, LogLevelInfo))
		logger.Debug("hidden")
		logger.Info("visible", "key", "value")

		var record map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &record))
		assert.Equal(t, "visible", record["msg"])
		assert.Equal(t, "value", record["key"])
	})
	t.Run("text", func(t *testing.T) {
		out := new(bytes.Buffer)
		logger := slog.New(newLogHandler(out, HandlerTypeText, LogLevelDebug))
		logger.Debug("visible")
		assert.Contains(t, out.String(), "msg=visible")
	})
	t.Run("error_level_filters_warnings", func(t *testing.T) {
		out := new(bytes.Buffer)
		logger := slog.New(newLogHandler(out, HandlerTypeText, LogLevelError))
		logger.Warn("hidden")
		assert.Empty(t, out.String())
	})
}

func TestInitLogging(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	SetTestFlag(t, "log_handler_type", "text")
	SetTestFlag(t, "log_level", "warn")
	InitLogging()
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelWarn))
}
