package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesFiles(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Console.Enabled = false

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown() })

	logger.Info("main only")
	logger.Error("goes everywhere")

	main, err := os.ReadFile(filepath.Join(cfg.Dir, "searchsync.log"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "main only")
	assert.Contains(t, string(main), "goes everywhere")

	errors, err := os.ReadFile(filepath.Join(cfg.Dir, "errors.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(errors), "main only")
	assert.Contains(t, string(errors), "goes everywhere")
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello")

	require.NoError(t, Shutdown())
	require.NoError(t, Shutdown())
}
