// Package logging is a thin structured logger over log/slog. Every
// component logs through Logger with a component name and optional error.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel orders log severities.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError

	levelOff
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel reads a level from config or a flag. Empty means info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn, error)", s)
}

// slog levels are spaced by four.
func (l LogLevel) slog() slog.Level {
	return slog.Level(4 * (int(l) - int(LevelInfo)))
}

// Logger is what components log through. Warn and Error take the error
// separately so it always lands under the "error" key.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig selects the handler.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
}

// DefaultConfig is info level text on stderr.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// AppLogger implements Logger. The component is kept apart from the other
// attributes so WithComponent replaces it instead of stacking.
type AppLogger struct {
	base      *slog.Logger
	component string
}

// NewLogger builds a logger from cfg; nil means DefaultConfig.
func NewLogger(cfg *LoggerConfig) *AppLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	}
	return &AppLogger{base: slog.New(h)}
}

// Nop discards everything.
func Nop() Logger {
	return NewLogger(&LoggerConfig{Level: levelOff, Output: io.Discard})
}

func (l *AppLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *AppLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *AppLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *AppLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelError, err, msg, fields)
}

// With returns a logger that adds fields to every record.
func (l *AppLogger) With(fields ...interface{}) Logger {
	return &AppLogger{base: l.base.With(fields...), component: l.component}
}

// WithComponent tags records with component, replacing any earlier tag.
func (l *AppLogger) WithComponent(component string) Logger {
	return &AppLogger{base: l.base, component: component}
}

func (l *AppLogger) emit(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.base.Enabled(ctx, level) {
		return
	}
	args := make([]interface{}, 0, len(fields)+4)
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.base.Log(ctx, level, msg, append(args, fields...)...)
}

// Redact masks a secret, keeping a short prefix so keys can be told apart.
func Redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "[REDACTED]"
	}
	return secret[:4] + "…[REDACTED]"
}
