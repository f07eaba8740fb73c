// Package logging wraps log/slog: a thin struct around *slog.Logger with a JSON/text
// handler switch and convenience methods for the events this system actually emits,
// scoped to core operations instead of HTTP requests.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level mirrors slog's levels as plain lowercase strings so config values and log
// output use the same vocabulary.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls the logger's handler.
type Config struct {
	Level     Level
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns the production-shaped default: JSON to stdout at info level.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Format: "json", Output: os.Stdout, AddSource: true}
}

// Logger wraps slog.Logger with core-operation-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a structured logger from a Config (nil uses DefaultConfig).
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithFields returns a logger carrying additional structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Operation logs the entry of a core operation at debug level: its command name, jid,
// and queue.
func (l *Logger) Operation(op, jid, queue string) {
	l.Debug("core operation", "op", op, "jid", jid, "queue", queue)
}

// Rejected logs a fenced operation that failed its precondition check (worker
// mismatch, queue mismatch, wrong state) at warn level.
func (l *Logger) Rejected(op, jid string, err error) {
	l.Warn("core operation rejected", "op", op, "jid", jid, "error", err)
}

// Reclaimed logs a lock-expiry reclamation at info level.
func (l *Logger) Reclaimed(jid, queue, worker string, failed bool) {
	l.Info("lease reclaimed", "jid", jid, "queue", queue, "worker", worker, "failed", failed)
}

// Spawned logs a recurring job instantiation at debug level.
func (l *Logger) Spawned(templateJid, spawnJid string, count int64) {
	l.Debug("recurring job spawned", "template", templateJid, "jid", spawnJid, "count", count)
}

var defaultLogger *Logger

// Init sets the process-wide default logger (used by packages that don't carry their
// own Logger reference, e.g. cmd/qlessd before the Engine is constructed).
func Init(cfg *Config) {
	defaultLogger = New(cfg)
}

// Default returns the process-wide logger, initializing it with defaults if needed.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}
