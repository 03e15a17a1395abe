package logger

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsGlobalLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			New(Config{Level: tt.level})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestNewWithFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "engine.log")

	l := New(Config{Level: "info", File: path})
	l.Info().Msg("boot")

	require.DirExists(t, filepath.Dir(path))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 50, orDefault(0, 50))
	assert.Equal(t, 50, orDefault(-1, 50))
	assert.Equal(t, 7, orDefault(7, 50))
}
