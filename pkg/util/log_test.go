package util

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewLoggerWithFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.log")
	logger, err := NewLoggerWithFile(path, "debug")
	require.NoError(t, err)
	logger.Sugar().Infow("hello", "k", "v")
	_ = logger.Sync()
	assert.FileExists(t, path)
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), c.Now())

	fired := <-c.After(time.Second)
	assert.Equal(t, start.Add(time.Minute+time.Second), fired)
}
