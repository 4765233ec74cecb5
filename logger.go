package knnstore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with datastore-specific context.
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

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithLocation adds the persistence location to the logger.
func (l *Logger) WithLocation(location string) *Logger {
	return &Logger{
		Logger: l.Logger.With("location", location),
	}
}

// LogTrain logs a training run.
func (l *Logger) LogTrain(ctx context.Context, samples, centroids int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "training failed",
			"samples", samples,
			"centroids", centroids,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "finished training the index",
		"samples", samples,
		"centroids", centroids,
		"seconds", elapsed.Seconds(),
	)
}

// LogAdd logs an add batch.
func (l *Logger) LogAdd(ctx context.Context, count, total int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "adding keys failed",
			"count", count,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "finished adding keys to the index",
		"count", count,
		"total", total,
		"seconds", elapsed.Seconds(),
	)
}

// LogSearch logs a search call.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"queries", queries,
		"k", k,
		"duration", elapsed,
	)
}

// LogSave logs a save.
func (l *Logger) LogSave(ctx context.Context, location string, bytes int64, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "saving datastore failed",
			"location", location,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "saved datastore",
		"location", location,
		"bytes", bytes,
		"seconds", elapsed.Seconds(),
	)
}

// LogLoad logs a load.
func (l *Logger) LogLoad(ctx context.Context, location string, count int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "loading datastore failed",
			"location", location,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "loaded datastore",
		"location", location,
		"count", count,
		"seconds", elapsed.Seconds(),
	)
}
