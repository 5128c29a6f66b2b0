package indexq

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with indexq-specific helpers.
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

// WithShard adds a shard index field to the logger.
func (l *Logger) WithShard(shard int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", shard),
	}
}

// LogQueueClose logs the outcome of closing a shard queue. Close failures are
// logged rather than escalated so a single bad queue never blocks shutdown or
// refresh of the remaining shards.
func (l *Logger) LogQueueClose(shard int, err error) {
	if err != nil {
		l.Warn("shard queue close failed",
			"shard", shard,
			"error", err,
		)
	} else {
		l.Debug("shard queue closed",
			"shard", shard,
		)
	}
}

// LogRefresh logs a local shard set refresh.
func (l *Logger) LogRefresh(shards []int) {
	l.Info("local shard queues refreshed",
		"shards", shards,
		"count", len(shards),
	)
}

// LogCompaction logs a queue compaction pass.
func (l *Logger) LogCompaction(shard int, err error) {
	if err != nil {
		l.Error("queue compaction failed",
			"shard", shard,
			"error", err,
		)
	} else {
		l.Debug("queue compaction completed",
			"shard", shard,
		)
	}
}

// LogSessionEnd logs the confirmation of a consumption session.
func (l *Logger) LogSessionEnd(shard int, delivered int64, err error) {
	if err != nil {
		l.Error("end dequeue failed",
			"shard", shard,
			"delivered", delivered,
			"error", err,
		)
	} else {
		l.Debug("dequeue session confirmed",
			"shard", shard,
			"delivered", delivered,
		)
	}
}
