package imgmatch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with imgmatch-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRunID tags every record with a fresh run id.
func (l *Logger) WithRunID() *Logger {
	return &Logger{
		Logger: l.Logger.With("run", uuid.NewString()),
	}
}

// WithCollection adds a collection field ("A" or "B").
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// LogPhase logs the end of a pipeline phase.
func (l *Logger) LogPhase(ctx context.Context, phase string, elapsed time.Duration, args ...any) {
	l.InfoContext(ctx, phase+" done", append([]any{"elapsed", elapsed}, args...)...)
}

// LogQuery logs a single retrieval query.
func (l *Logger) LogQuery(ctx context.Context, id uint32, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"image", id,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"image", id,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogOutput logs the pair list write.
func (l *Logger) LogOutput(ctx context.Context, path string, images int, numPairs uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write pairs failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pairs written",
			"path", path,
			"images", images,
			"pairs", numPairs,
		)
	}
}
