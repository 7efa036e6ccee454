package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/oteladapters"
)

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message", "origin", "post#1")
	logger.InfoContext(ctx, "info message", "origin", "post#1")
	logger.WarnContext(ctx, "warn message", "origin", "post#1")
	logger.ErrorContext(ctx, "error message", "origin", "post#1")

	// assert
	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
	assert.Contains(t, output, `"origin":"post#1"`)
	assert.Contains(t, output, `"level":"DEBUG"`)
	assert.Contains(t, output, `"level":"ERROR"`)
}

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("test")

	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "info message", "key", "value")
	})
}

func Test_OTelLogger_EmitsWithoutPanicking(t *testing.T) {
	// arrange
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	// act / assert
	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug message", "version", int64(3))
		logger.InfoContext(ctx, "info message", "attribute_count", 12)
		logger.WarnContext(ctx, "warn message", "duration_ms", 1.5)
		logger.ErrorContext(ctx, "error message", "dangling")
	})
}
