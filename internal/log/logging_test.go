package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := SetupLogger("verbose", "")
	assert.Error(t, err)
}

func TestTraceLevelRendered(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace, ReplaceAttr: renameTraceLevel})
	slog.New(h).Log(context.Background(), LevelTrace, "raw report")

	assert.Contains(t, buf.String(), "level=TRACE")
	assert.NotContains(t, buf.String(), "DEBUG-4")
}

func TestLevelFilterSplitsErrors(t *testing.T) {
	var out, errs bytes.Buffer
	logger := slog.New(MultiHandler{hs: []slog.Handler{
		LevelFilter{pass: func(l slog.Level) bool { return l < slog.LevelError }, h: slog.NewTextHandler(&out, nil)},
		LevelFilter{pass: func(l slog.Level) bool { return l >= slog.LevelError }, h: slog.NewTextHandler(&errs, nil)},
	}})

	logger.Info("attached")
	logger.Error("write failed")

	assert.Contains(t, out.String(), "attached")
	assert.NotContains(t, out.String(), "write failed")
	assert.Contains(t, errs.String(), "write failed")
	assert.NotContains(t, errs.String(), "attached")
}
