package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default warn level", 0, zerolog.WarnLevel},
		{"info level", 1, zerolog.InfoLevel},
		{"debug level", 2, zerolog.DebugLevel},
		{"trace level", 3, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "logs", "autoextract.log")

			SetupLogger(tt.verbosity, logPath)

			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
			_, err := os.Stat(logPath)
			assert.NoError(t, err, "log file should be created")
		})
	}
}

func TestSetupLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "autoextract.log")

	logger := SetupLogger(1, logPath)
	logger.Info().Str("archive", "bundle.zip").Msg("hello")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bundle.zip")
}

func TestDefaultLogFilePath(t *testing.T) {
	got := DefaultLogFilePath()
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "autoextract.log", filepath.Base(got))
	assert.Equal(t, "autoextract", filepath.Base(filepath.Dir(got)))
}

func TestLogDuration(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := zerolog.New(&buf)

	LogDuration(logger, time.Now().Add(-1500*time.Millisecond), "extract a.zip")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "extract a.zip", entry["operation"])
	assert.Equal(t, "Operation completed", entry["message"])
	assert.GreaterOrEqual(t, entry["duration"], float64(1500))
}
