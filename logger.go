package packdb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with packdb-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithGroup adds a group-name field to the logger.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("group", name),
	}
}

// WithTable adds a table-name field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// LogCommit logs a completed or failed write transaction commit.
func (l *Logger) LogCommit(ctx context.Context, version uint64, dirtyBytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"version", version,
			"dirty_bytes", dirtyBytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"version", version,
			"dirty_bytes", dirtyBytes,
		)
	}
}

// LogRollback logs a write transaction rollback.
func (l *Logger) LogRollback(ctx context.Context, version uint64, reclaimedBytes int64) {
	l.DebugContext(ctx, "rollback completed",
		"version", version,
		"reclaimed_bytes", reclaimedBytes,
	)
}

// LogAlloc logs a slow-path allocation (free-list miss, file extension).
func (l *Logger) LogAlloc(ctx context.Context, size uint64, extended bool) {
	l.DebugContext(ctx, "allocation",
		"size", size,
		"extended_file", extended,
	)
}

// LogWiden logs an array width upgrade.
func (l *Logger) LogWiden(ctx context.Context, ref uint64, fromBits, toBits int) {
	l.DebugContext(ctx, "array widened",
		"ref", ref,
		"from_bits", fromBits,
		"to_bits", toBits,
	)
}

// LogExtend logs a memory-mapped file extension.
func (l *Logger) LogExtend(ctx context.Context, oldSize, newSize uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "file extend failed",
			"old_size", oldSize,
			"new_size", newSize,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "file extended",
			"old_size", oldSize,
			"new_size", newSize,
		)
	}
}

// LogAsyncSync logs the completion of a DurabilityAsync background fsync,
// which runs after the commit that scheduled it has already returned.
func (l *Logger) LogAsyncSync(ctx context.Context, version uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "background sync failed",
			"version", version,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "background sync completed",
			"version", version,
		)
	}
}

// LogLockWait logs how long a writer waited to acquire the single-writer slot.
func (l *Logger) LogLockWait(ctx context.Context, waitedMillis int64, timedOut bool) {
	if timedOut {
		l.WarnContext(ctx, "writer lock wait timed out",
			"waited_ms", waitedMillis,
		)
	} else if waitedMillis > 0 {
		l.DebugContext(ctx, "writer lock acquired",
			"waited_ms", waitedMillis,
		)
	}
}
