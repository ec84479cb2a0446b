package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type for context keys defined in this package to
// avoid collisions with keys defined elsewhere.
type contextKey int

const loggerKey contextKey = iota

// WithLogger returns a new context that carries the provided logger.
// Handlers and services attach request- or job-scoped loggers so that
// lower layers (stores, clients) log with the same correlation fields.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from the context. If no logger is attached,
// the process-wide default logger is returned, so callers never need to
// nil-check the result.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// FromContextOrDefault extracts the logger from the context, falling back
// to the provided default rather than the process-wide one. Stores use
// this so component-scoped loggers survive when no request logger is set.
func FromContextOrDefault(ctx context.Context, def *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	if def != nil {
		return def
	}
	return slog.Default()
}
