package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	logger, atom, err := New(Config{Level: "warn", Format: "json", OutputPath: path})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, atom.Level())

	logger.Info("dropped")
	logger.Warn("kept", zap.String("serial", "3868484997"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"serial":"3868484997"`)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	_, atom, err := New(Config{Level: "loud", Format: "console", OutputPath: filepath.Join(t.TempDir(), "log")})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, atom.Level())

	SetLevel(atom, "debug")
	assert.Equal(t, zapcore.DebugLevel, atom.Level())

	SetLevel(atom, "nonsense")
	assert.Equal(t, zapcore.DebugLevel, atom.Level())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
