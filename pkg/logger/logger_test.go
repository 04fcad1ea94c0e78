package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestFromContext_AddsTraceFields(t *testing.T) {
	l, logs := observed()
	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})

	Info(ctx, "movement appended", "store_id", "S1")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "S1", fields["store_id"])
	}
}

func TestFromContext_NoTrace(t *testing.T) {
	l, logs := observed()
	ctx := WithLogger(context.Background(), l)

	Warn(ctx, "integrity warning")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	}
}

func TestWithComponent(t *testing.T) {
	l, logs := observed()

	l.WithComponent("valuation").Infow("batch done")

	assert.Equal(t, "valuation", logs.All()[0].ContextMap()["component"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	assert.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}
