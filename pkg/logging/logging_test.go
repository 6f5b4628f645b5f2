package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_JSON(t *testing.T) {
	t.Cleanup(func() { Init(nil, "text", "info") })

	var buf bytes.Buffer
	l := Init(&buf, "json", "debug")
	l.Debug("resolved target", "target", "demo.Echo")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "resolved target", line["msg"])
	assert.Equal(t, "demo.Echo", line["target"])
	assert.Same(t, l, Logger())
}

func TestInit_TextFiltersByLevel(t *testing.T) {
	t.Cleanup(func() { Init(nil, "text", "info") })

	var buf bytes.Buffer
	l := Init(&buf, "text", "warn")
	l.Info("dropped")
	l.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetLevelFromString(t *testing.T) {
	t.Cleanup(func() { SetLevelFromString("info") })

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for in, want := range cases {
		SetLevelFromString(in)
		assert.Equal(t, want, Level(), in)
	}

	SetLevelFromString("verbose")
	assert.Equal(t, slog.LevelError, Level(), "unknown level leaves the previous one")
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	assert.Same(t, base, WithTrace(context.Background(), base))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	WithTrace(ctx, base).Info("traced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
}
