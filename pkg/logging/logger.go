// Package logging wraps slog.Logger with field names shared by the
// assigner, the accelerator and the CLI.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// Logger wraps slog.Logger with assignment-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a Logger from a format ("json" or "text") and level name.
func New(w io.Writer, format, level string) *Logger {
	if strings.EqualFold(format, "json") {
		return NewJSONLogger(w, ParseLevel(level))
	}
	return NewTextLogger(w, ParseLevel(level))
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{Logger: l.Logger.With("dimension", dim)}
}

// WithDevice adds a device field to the logger.
func (l *Logger) WithDevice(name string) *Logger {
	return &Logger{Logger: l.Logger.With("device", name)}
}

func errorAttrs(err error) []any {
	attrs := []any{"error", err}
	if code, ok := compute.Code(err); ok {
		attrs = append(attrs, "code", code)
	}
	return attrs
}

// LogDispatch logs the outcome of one batch round trip.
func (l *Logger) LogDispatch(ctx context.Context, batchID string, items int, err error) {
	if err != nil {
		args := append([]any{"batch", batchID, "items", items}, errorAttrs(err)...)
		l.ErrorContext(ctx, "dispatch failed", args...)
		return
	}
	l.DebugContext(ctx, "dispatch completed",
		"batch", batchID,
		"items", items,
	)
}

// LogPrepare logs a centroid upload.
func (l *Logger) LogPrepare(ctx context.Context, count int, version string, err error) {
	if err != nil {
		args := append([]any{"centroids", count}, errorAttrs(err)...)
		l.ErrorContext(ctx, "centroid upload failed", args...)
		return
	}
	l.DebugContext(ctx, "centroids prepared",
		"centroids", count,
		"version", version,
	)
}

// LogResize logs a change of batch capacity.
func (l *Logger) LogResize(ctx context.Context, requested, items int, err error) {
	if err != nil {
		args := append([]any{"requested", requested}, errorAttrs(err)...)
		l.ErrorContext(ctx, "batch resize failed", args...)
		return
	}
	if requested != items {
		l.WarnContext(ctx, "batch capacity clamped",
			"requested", requested,
			"items", items,
		)
		return
	}
	l.DebugContext(ctx, "batch resized", "items", items)
}
