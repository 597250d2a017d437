package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
)

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	require.NoError(t, err)
	logger.Info("hello")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "bonksticks.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
}

func TestConsoleLoggerPrefixesComponentAndLevelID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	ctx := logging.WithLevelID(context.Background(), "1a2b3")
	ctx = logging.WithRequestID(ctx, "req-1")
	component := logging.NewComponentLogger(logger, "converter")
	logging.WithContext(ctx, component).Info("converted map", logging.Int("difficulties", 4), logging.String("name", "two words"))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	assert.Contains(t, line, "INFO converter: [1a2b3] converted map")
	assert.Contains(t, line, "difficulties=4")
	assert.Contains(t, line, `name="two words"`)
	assert.Contains(t, line, "correlation_id=req-1")
	assert.NotContains(t, line, ".go:", "info logs should omit caller information")
}

func TestJSONLoggerUsesLowercaseLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "warn", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logger.Info("dropped")
	logging.WarnWithContext(context.Background(), logger, "cover missing", "cover_missing")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &payload))
	assert.Equal(t, "warn", payload["level"])
	assert.Equal(t, "cover_missing", payload[logging.FieldEventType])
	assert.Equal(t, "check logs for details", payload[logging.FieldErrorHint])
	assert.NotEmpty(t, payload[logging.FieldImpact])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	require.Error(t, err)
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	logger.Error("ignored")
}
