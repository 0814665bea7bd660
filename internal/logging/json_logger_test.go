package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestJSONLogger_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: DEBUG})

	logger.Debug("debug message", F("key1", "value1"))
	logger.Info("info message", F("key2", 123))
	logger.Warn("warn message")
	logger.Error("error message", F("key3", true))

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 4)

	assert.Equal(t, "debug", entries[0]["level"])
	assert.Equal(t, "debug message", entries[0]["message"])
	assert.Equal(t, "value1", entries[0]["key1"])
	assert.Equal(t, float64(123), entries[1]["key2"])
	assert.Equal(t, "warn", entries[2]["level"])
	assert.Equal(t, true, entries[3]["key3"])
	assert.NotEmpty(t, entries[0]["time"])
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: WARN})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	assert.Len(t, decodeLines(t, buf.Bytes()), 2)
}

func TestJSONLogger_WithTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: INFO})

	logger.WithTraceID("trace-abc").Info("traced")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "trace-abc", entries[0]["traceId"])
}

func TestJSONLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: INFO})

	assert.Same(t, logger, logger.WithContext(context.Background()))

	ctx := ContextWithTraceID(context.Background(), "ctx-trace")
	logger.WithContext(ctx).Info("from context")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "ctx-trace", entries[0]["traceId"])
}

func TestJSONLogger_SetLevelSharedWithChildren(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: INFO})
	child := logger.WithTraceID("t1")

	logger.SetLevel(ERROR)
	child.Info("suppressed")
	child.Error("kept")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["message"])
}

func TestJSONLogger_Redaction(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger(JSONLoggerConfig{Writer: buf, Level: INFO, RedactSensitive: true})

	logger.Info("sending Authorization: Bearer ya29.secret-token",
		F("header", "Bearer ya29.secret-token"),
		F("error", errors.New("access_token=abc123 rejected")),
	)

	out := buf.String()
	assert.NotContains(t, out, "ya29.secret-token")
	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRotatingFile_Rotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "gateway.log")

	file, err := NewRotatingFile(logPath, 64)
	require.NoError(t, err)
	logger := NewJSONLogger(JSONLoggerConfig{Writer: file, Closer: file, Level: INFO})

	for i := 0; i < 10; i++ {
		logger.Info("a reasonably long log message to force rotation", F("i", i))
	}
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "expected at least one rotated file")

	_, err = os.Stat(logPath)
	assert.NoError(t, err)
}
