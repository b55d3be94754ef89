package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/nulzo/prism-go/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: zapcore.AddSync(&buf)}, zap.NewAtomicLevel())

	log.Info("dropped")
	log.Warn("gateway returned an error", zap.Int("status", 429), zap.String("request_id", "req-1"))
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "gateway returned an error", entry["msg"])
	assert.Equal(t, float64(429), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestNew_ColoredConsole(t *testing.T) {
	prev := cli.Enabled()
	cli.SetEnabled(true)
	t.Cleanup(func() { cli.SetEnabled(prev) })

	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "console", EnableColor: true, Output: zapcore.AddSync(&buf)}, zap.NewAtomicLevel())

	log.Debug("stream finished", zap.Int("chunks", 4))
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "stream finished")
	assert.Contains(t, buf.String(), cli.Purple+"4"+cli.ResetCode)
}

func TestAtomicLevel(t *testing.T) {
	var buf bytes.Buffer
	level := zap.NewAtomicLevel()
	log := New(Config{Level: "error", Format: "json", Output: zapcore.AddSync(&buf)}, level)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	level.SetLevel(zapcore.InfoLevel)
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestShouldEnableColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	require.NoError(t, os.Unsetenv("NO_COLOR"))

	t.Setenv("LOG_COLOR", "false")
	assert.False(t, shouldEnableColor())

	t.Setenv("LOG_COLOR", "1")
	assert.True(t, shouldEnableColor())
}
