// Package logger provides the structured JSON logger used by the HTTP
// server. It is a thin veneer over log/slog that fixes the output format
// and adds typed field constructors plus domain field helpers, so call
// sites never build slog attribute lists by hand.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general operational information.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
	// LevelFatal is for fatal errors that require program termination.
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String returns the string representation of the log level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name, defaulting to INFO on unknown input.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// toSlog maps our levels onto slog's. Fatal logs as error; the exit
// happens in Fatal itself.
func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is one structured key-value pair.
type Field struct {
	Key   string
	Value any
}

// F creates a field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Typed field constructors.
func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }

// Err creates an "error" field from an error.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field rendered as a string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates an RFC3339 time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// attrs converts fields to slog arguments.
func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Options configures the logger.
type Options struct {
	// Output receives the JSON lines (default os.Stdout).
	Output io.Writer

	// Level is the minimum level that gets emitted.
	Level Level

	// AddSource includes the file:line of the call site.
	AddSource bool
}

// DefaultOptions returns INFO-level JSON logging to stdout.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  LevelInfo,
	}
}

// Logger emits structured JSON log lines. Loggers are immutable; With
// returns a derived logger sharing the same output.
type Logger struct {
	s *slog.Logger
}

// New creates a Logger with the given options.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	handler := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
		Level:     opts.Level.toSlog(),
		AddSource: opts.AddSource,
	})
	return &Logger{s: slog.New(handler)}
}

// Default creates a logger with default options.
func Default() *Logger {
	return New(DefaultOptions())
}

// With returns a logger that includes the given fields on every line.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{s: l.s.With(attrs(fields)...)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.s.Debug(msg, attrs(fields)...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.s.Info(msg, attrs(fields)...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.s.Warn(msg, attrs(fields)...) }
func (l *Logger) Error(msg string, fields ...Field) { l.s.Error(msg, attrs(fields)...) }

// Fatal logs at error level and terminates the process.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.s.Error(msg, attrs(fields)...)
	os.Exit(1)
}

// Formatted variants for call sites without structured fields.
func (l *Logger) Debugf(format string, args ...any) { l.s.Debug(sprintf(format, args)) }
func (l *Logger) Infof(format string, args ...any)  { l.s.Info(sprintf(format, args)) }
func (l *Logger) Warnf(format string, args ...any)  { l.s.Warn(sprintf(format, args)) }
func (l *Logger) Errorf(format string, args ...any) { l.s.Error(sprintf(format, args)) }

func (l *Logger) Fatalf(format string, args ...any) {
	l.s.Error(sprintf(format, args))
	os.Exit(1)
}

func sprintf(format string, args []any) string {
	return fmt.Sprintf(format, args...)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT PROPAGATION
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext attaches the logger to the context.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the attached logger, or a default one.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// RequestIDKey is the field key for request tracing.
const RequestIDKey = "request_id"

// WithRequestID returns a logger carrying the request ID field.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN FIELD HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func TenantID(id string) Field      { return String("tenant_id", id) }
func StudentID(id string) Field     { return String("student_id", id) }
func AttemptID(id string) Field     { return String("attempt_id", id) }
func SubjectID(id string) Field     { return String("subject_id", id) }
func Grade(grade int) Field         { return Int("grade", grade) }
func XPAmount(xp int) Field         { return Int("xp_amount", xp) }
func CatalogVersion(v int) Field    { return Int("catalog_version", v) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
