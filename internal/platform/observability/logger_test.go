package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/requestctx"
)

func TestEventLoggerUsesRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)

	log := EventLogger(zap.New(fallbackCore))
	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))

	log(ctx, "cart.merge.capped", map[string]any{"productID": int64(7), "requested": 5})

	require.Equal(t, 0, fallbackLogs.Len())
	require.Equal(t, 1, requestLogs.Len())
	entry := requestLogs.All()[0]
	assert.Equal(t, "cart.merge.capped", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, int64(7), entry.ContextMap()["productID"])
}

func TestEventLoggerFallsBackAndWarnsOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order.event.publish.failed", map[string]any{"error": errors.New("boom")})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}

func TestEventLoggerWarnsOnUnderscoreFailureSuffix(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order.confirmation.send_failed", nil)
	log(context.Background(), "webhook.verify_error", nil)
	log(context.Background(), "webhook.failed_checks_cleared", nil)

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
}

func TestParseCloudTraceContext(t *testing.T) {
	info, spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", info.TraceID)
	assert.True(t, info.Sampled)
	assert.True(t, spanCtx.IsRemote())

	_, _, ok = parseCloudTraceContext("not-a-trace")
	assert.False(t, ok)
}

func TestPrintfAdapterLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewPrintfAdapter(zap.New(core))

	adapter.Debugf("request %s", "req_1")
	adapter.Warnf("retrying %d", 2)
	adapter.Errorf("failed: %v", errors.New("boom"))

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "request req_1", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "failed: boom", entries[2].Message)
}
