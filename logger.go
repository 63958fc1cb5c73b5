package graphmap

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with graphmap-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithChain adds a chain name field to the logger.
func (l *Logger) WithChain(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("chain", name),
	}
}

// WithJob adds a job index field to the logger.
func (l *Logger) WithJob(index int) *Logger {
	return &Logger{
		Logger: l.Logger.With("job", index),
	}
}

// WithPartition adds a partition field to the logger.
func (l *Logger) WithPartition(id uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", id),
	}
}

// LogJobStart logs the transition of a job into the running state.
func (l *Logger) LogJobStart(ctx context.Context, index int, script string, partitions int) {
	l.InfoContext(ctx, "job started",
		"job", index,
		"script", script,
		"partitions", partitions,
	)
}

// LogJobEnd logs a finished job.
func (l *Logger) LogJobEnd(ctx context.Context, index int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "job failed",
			"job", index,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "job succeeded",
			"job", index,
			"duration", duration,
		)
	}
}

// LogJobSkipped logs a job skipped because of an existing checkpoint.
func (l *Logger) LogJobSkipped(ctx context.Context, index int, output string) {
	l.InfoContext(ctx, "job skipped, checkpoint found",
		"job", index,
		"output", output,
	)
}

// LogPartition logs a finished partition worker.
func (l *Logger) LogPartition(ctx context.Context, partition uint32, attempts int, mapped, skipped uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "partition failed",
			"partition", partition,
			"attempts", attempts,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "partition completed",
			"partition", partition,
			"attempts", attempts,
			"mapped", mapped,
			"skipped", skipped,
		)
	}
}

// LogAssignment logs a slot assignment decision.
func (l *Logger) LogAssignment(ctx context.Context, partition uint32, slot uint32, colocated bool) {
	l.DebugContext(ctx, "partition assigned",
		"partition", partition,
		"slot", slot,
		"colocated", colocated,
	)
}
