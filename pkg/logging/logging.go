// Package logging configures the structured logger shared by the child
// bridge and the parent CLI. Logs always go to a diagnostic stream, never to
// the stream that carries boundary envelopes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

var (
	logger   atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// Logger returns the configured logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// Init reconfigures the logger.
// format: "text" (default) or "json"
// level: "debug", "info", "warn", "error"
func Init(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	logger.Store(l)
	return l
}

// SetLevelFromString sets the log level from a string. Unknown values leave
// the level unchanged.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	}
}

// Level returns the current log level.
func Level() slog.Level {
	return logLevel.Level()
}

// WithTrace returns l with trace_id and span_id attributes when ctx carries
// a valid span context.
func WithTrace(ctx context.Context, l *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}
