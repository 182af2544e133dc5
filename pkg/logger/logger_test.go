package logger

import (
	"path/filepath"
	"testing"

	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Defaults(t *testing.T) {
	cfg := &config.LoggerConfig{}
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LoggerConfig{
		Level:    "debug",
		Format:   "console",
		Output:   "file",
		FilePath: filepath.Join(dir, "logs", "crosspost.log"),
	}
	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Debug("hello")
	require.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidLevelFallsBack(t *testing.T) {
	logger, err := NewLogger(&config.LoggerConfig{Level: "noisy"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
