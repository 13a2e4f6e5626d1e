package rescache

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/rescache/model"
)

// Logger wraps slog.Logger with rescache-specific context.
// This provides structured logging with consistent field names.
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
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithHash adds a hash field to the logger.
func (l *Logger) WithHash(h model.Hash) *Logger {
	return &Logger{
		Logger: l.Logger.With("hash", h.String()),
	}
}

// WithKind adds a kind field to the logger.
func (l *Logger) WithKind(kind string) *Logger {
	return &Logger{
		Logger: l.Logger.With("kind", kind),
	}
}

// LogRequest logs an admitted or rejected request.
func (l *Logger) LogRequest(ctx context.Context, h model.Hash, kind string, attached bool, err error) {
	if err != nil {
		l.DebugContext(ctx, "request rejected",
			"hash", h.String(),
			"kind", kind,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "request admitted",
		"hash", h.String(),
		"kind", kind,
		"attached", attached,
	)
}

// LogConstruct logs the outcome of a first construction.
func (l *Logger) LogConstruct(ctx context.Context, h model.Hash, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "construct failed",
			"hash", h.String(),
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "construct completed",
		"hash", h.String(),
		"duration", duration,
	)
}

// LogReload logs the outcome of a hot reload.
func (l *Logger) LogReload(ctx context.Context, h model.Hash, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "reload failed, keeping previous payload",
			"hash", h.String(),
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "reload completed",
		"hash", h.String(),
		"duration", duration,
	)
}

// LogDelete logs the deletion of an entry.
func (l *Logger) LogDelete(ctx context.Context, h model.Hash, err error) {
	if err != nil {
		l.WarnContext(ctx, "delete hook failed",
			"hash", h.String(),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "entry deleted",
		"hash", h.String(),
	)
}
