package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storekit/searchsync/internal/config"
)

func testLoggingConfig(t *testing.T) config.LoggingConfig {
	t.Helper()
	cfg := config.DefaultLoggingConfig()
	cfg.Dir = t.TempDir()
	return cfg
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Info("fan out", "key", "value")

	assert.Contains(t, a.String(), "fan out")
	assert.Contains(t, b.String(), `"key":"value"`)
}

func TestMultiHandlerRespectsChildLevels(t *testing.T) {
	var debugOut, warnOut bytes.Buffer
	logger := slog.New(NewMultiHandler(
		slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnOut, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	logger.Info("info only")

	assert.Contains(t, debugOut.String(), "info only")
	assert.Empty(t, warnOut.String())
}

func TestMultiHandlerEnabled(t *testing.T) {
	h := NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
}

func TestMultiHandlerWithAttrs(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	).WithAttrs([]slog.Attr{slog.String("component", "test")}))

	logger.Info("tagged")

	assert.Contains(t, a.String(), "component=test")
	assert.Contains(t, b.String(), "component=test")
}
