package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// lumberjack runs a rotation goroutine after the first write.
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

func TestNewFileLoggerWritesStructuredEntries(t *testing.T) {
	conf.SetTestSettings(&conf.Settings{Main: conf.MainSettings{Log: conf.LogConfig{
		Enabled:  true,
		Rotation: conf.RotationDaily,
		MaxSize:  10 * 1024 * 1024,
	}}})

	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, closeFn, err := NewFileLogger(path, "server", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("HTTP server starting", "addr", "127.0.0.1:8090")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "server", entry["service"])
	assert.Equal(t, "HTTP server starting", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewFileLoggerCreatesLogDirectory(t *testing.T) {
	conf.SetTestSettings(&conf.Settings{Main: conf.MainSettings{Log: conf.LogConfig{
		Enabled:  true,
		Rotation: conf.RotationSize,
		MaxSize:  1024 * 1024,
	}}})

	path := filepath.Join(t.TempDir(), "nested", "deeper", "app.log")
	logger, closeFn, err := NewFileLogger(path, "engine", slog.LevelDebug)
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	logger.Debug("cache primed")

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
