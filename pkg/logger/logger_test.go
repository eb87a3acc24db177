package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsTraceIDs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	FromContext(ctx).Info("settled")
	FromContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, sc.TraceID().String(), entries[0].ContextMap()["trace_id"])
	require.Equal(t, sc.SpanID().String(), entries[0].ContextMap()["span_id"])
	require.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestProductionConfig(t *testing.T) {
	cfg := productionConfig()
	require.Equal(t, "json", cfg.Encoding)
	require.Equal(t, "severity", cfg.EncoderConfig.LevelKey)
	require.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
}
