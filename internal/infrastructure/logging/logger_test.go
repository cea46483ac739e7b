package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTo_TextFormat(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info", Format: "text"}).
		With("system", "scheduler")

	// Act
	logger.Info("sweep completed", "job", "receipts", "matched", 3)

	// Assert
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[INFO] [scheduler] ["), line)
	assert.Contains(t, line, " sweep completed job=receipts matched=3")
	assert.NotContains(t, line, "system=")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestNewLoggerTo_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "warn"})

	logger.Info("hidden")
	logger.Debug("hidden too")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerTo_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "debug", Format: "JSON"})

	logger.Debug("candidate scored", "record_id", "rc-1", "total", 0.9)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "candidate scored", entry["msg"])
	assert.Equal(t, "rc-1", entry["record_id"])
	assert.Equal(t, 0.9, entry["total"])
}

func TestMavenHandler_QuotesAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.Error("link failed", "merchant", "Cafe Roma", "error", errors.New("database is locked"), "note", "")

	line := buf.String()
	assert.Contains(t, line, "[ERROR]")
	assert.Contains(t, line, `merchant="Cafe Roma"`)
	assert.Contains(t, line, `error="database is locked"`)
	assert.Contains(t, line, `note=""`)
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.WithGroup("sweep").With("job", "receipts").
		Info("progress", slog.Group("counts", "found", 10, "matched", 4))

	line := buf.String()
	assert.Contains(t, line, "sweep.job=receipts")
	assert.Contains(t, line, "sweep.counts.found=10")
	assert.Contains(t, line, "sweep.counts.matched=4")
}

func TestMavenHandler_SystemFromWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil)).With("system", "api").With("port", 8085)

	logger.Info("listening")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[INFO] [api]"), line)
	assert.Contains(t, line, "port=8085")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}
