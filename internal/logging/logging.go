// Package logging provides the structured logger and the context keys used to
// carry request identity (trace ID, user ID, role) across the service.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// TraceIDKey carries the per-request trace ID.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey carries the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated user's role claim.
	RoleKey contextKey = "role"
)

// Config controls logger construction.
type Config struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// Logger wraps zerolog with context-aware field extraction.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithContext returns an entry annotated with whatever identity fields the
// context carries.
func (l *Logger) WithContext(ctx context.Context) *Entry {
	zc := l.zl.With()
	if id := GetTraceID(ctx); id != "" {
		zc = zc.Str("trace_id", id)
	}
	if id := GetUserID(ctx); id != "" {
		zc = zc.Str("user_id", id)
	}
	if role := GetRole(ctx); role != "" {
		zc = zc.Str("role", role)
	}
	return &Entry{zl: zc.Logger()}
}

// LogRequest records one completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.WithContext(ctx).zl.Info().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("http request")
}

// LogSecurityEvent records an auth or abuse event at warn level.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).zl.Warn().Str("event", event).Msg("security event")
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Entry is a logger with bound fields.
type Entry struct {
	zl zerolog.Logger
}

// WithError binds an error to the entry.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{zl: e.zl.With().AnErr("error", err).Logger()}
}

// WithFields binds arbitrary fields to the entry.
func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	zc := e.zl.With()
	for k, v := range fields {
		zc = zc.Interface(k, v)
	}
	return &Entry{zl: zc.Logger()}
}

func (e *Entry) Debug(msg string) { e.zl.Debug().Msg(msg) }
func (e *Entry) Info(msg string)  { e.zl.Info().Msg(msg) }
func (e *Entry) Warn(msg string)  { e.zl.Warn().Msg(msg) }
func (e *Entry) Error(msg string) { e.zl.Error().Msg(msg) }

// WithTraceID returns a context carrying the trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRole extracts the role claim from context.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}

// NewTraceID returns a fresh trace ID.
func NewTraceID() string {
	return uuid.NewString()
}
