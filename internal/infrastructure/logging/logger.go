// Package logging provides structured logging for invsync. It wraps log/slog
// with context enrichment (run, kind and checkpoint identifiers) and
// sync-specific log helpers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// RunIDKey is the context key for sync run IDs.
	RunIDKey contextKey = "run_id"
	// KindKey is the context key for the entity kind being processed.
	KindKey contextKey = "entity_kind"
	// CheckpointIDKey is the context key for checkpoint IDs.
	CheckpointIDKey contextKey = "checkpoint_id"
)

// enrichKeys lists the context keys copied into every context-aware record.
var enrichKeys = []contextKey{CorrelationIDKey, RunIDKey, KindKey, CheckpointIDKey}

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with context enrichment.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Default returns the process-wide logger with the default configuration.
func Default() *Logger {
	globalOnce.Do(func() {
		global = New(DefaultConfig())
	})
	return global
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the log level of the logger and of every logger derived
// from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), level: l.level}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{slogger: l.slogger.WithGroup(name), level: l.level}
}

func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, enrichArgs(ctx, args)...)
}

// enrichArgs prepends the identifiers found in ctx to args.
func enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+2*len(enrichKeys))
	for _, k := range enrichKeys {
		if v := ctx.Value(k); v != nil {
			enriched = append(enriched, string(k), v)
		}
	}
	return append(enriched, args...)
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithRunID adds a sync run ID to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// WithKind adds an entity kind to the context.
func WithKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, KindKey, kind)
}

// WithCheckpointID adds a checkpoint ID to the context.
func WithCheckpointID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CheckpointIDKey, id)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if s, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return s
	}
	return ""
}

// RunID extracts the sync run ID from context.
func RunID(ctx context.Context) string {
	if s, ok := ctx.Value(RunIDKey).(string); ok {
		return s
	}
	return ""
}

// --- Sync logging helpers ---

// LogSyncStart logs the start of a sync run.
func LogSyncStart(ctx context.Context, logger *Logger, kinds []string) {
	logger.InfoContext(ctx, "sync started", "kinds", kinds)
}

// LogSyncComplete logs the completion of a sync run.
func LogSyncComplete(ctx context.Context, logger *Logger, pushed, failed, conflicts int, duration time.Duration) {
	logger.InfoContext(ctx, "sync completed",
		"pushed", pushed,
		"failed", failed,
		"conflicts", conflicts,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogSyncRejected logs a sync run refused before any work was done.
func LogSyncRejected(ctx context.Context, logger *Logger, err error) {
	logger.WarnContext(ctx, "sync rejected", "error", err.Error())
}

// LogCheckpointCreated logs a stored checkpoint.
func LogCheckpointCreated(ctx context.Context, logger *Logger, id string, kinds, links, sizeBytes int) {
	logger.InfoContext(ctx, "checkpoint created",
		"checkpoint_id", id,
		"kinds", kinds,
		"links", links,
		"size_bytes", sizeBytes,
	)
}

// LogCheckpointRestored logs a completed restore.
func LogCheckpointRestored(ctx context.Context, logger *Logger, id string, kinds int) {
	logger.InfoContext(ctx, "checkpoint restored", "checkpoint_id", id, "kinds", kinds)
}

// LogKindClassified logs the outcome of classifying one kind.
func LogKindClassified(ctx context.Context, logger *Logger, ahead, behind, modified, unchanged int) {
	logger.DebugContext(ctx, "kind classified",
		"ahead", ahead,
		"behind", behind,
		"modified", modified,
		"unchanged", unchanged,
	)
}

// LogKindFailed logs a kind-level failure. Other kinds are unaffected.
func LogKindFailed(ctx context.Context, logger *Logger, err error) {
	logger.ErrorContext(ctx, "kind failed", "error", err.Error())
}

// LogPushFailed logs a single record that could not be pushed.
func LogPushFailed(ctx context.Context, logger *Logger, id string, err error) {
	logger.WarnContext(ctx, "push failed", "id", id, "error", err.Error())
}

// LogConflict logs a modified record left for the operator.
func LogConflict(ctx context.Context, logger *Logger, id string, fields int) {
	logger.InfoContext(ctx, "conflict detected", "id", id, "fields", fields)
}
