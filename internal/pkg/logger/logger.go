// Package logger wraps log/slog. Request and batch identifiers travel in the
// context and are attached to every line logged through FromContext.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey struct{}

// Logger embeds *slog.Logger, so Info, Warn and friends are available.
type Logger struct {
	*slog.Logger
}

type Config struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string
	// Format is "text" or "json" (default).
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}

	l := slog.New(h)
	if cfg.ServiceName != "" {
		l = l.With("service", cfg.ServiceName)
	}
	return &Logger{Logger: l}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithComponent tags lines with the emitting package, e.g. "aiedit".
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// FromContext returns l with the request_id and batch_id stored in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	attrs, _ := ctx.Value(ctxKey{}).([]any)
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(attrs...)}
}

// LogFatal logs at error level and exits the process with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withAttr(ctx, "request_id", id)
}

// ContextWithBatchID marks ctx as belonging to one background batch.
func ContextWithBatchID(ctx context.Context, id string) context.Context {
	return withAttr(ctx, "batch_id", id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	attrs, _ := ctx.Value(ctxKey{}).([]any)
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == "request_id" {
			id, _ := attrs[i+1].(string)
			return id
		}
	}
	return ""
}

func withAttr(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	prev, _ := ctx.Value(ctxKey{}).([]any)
	// Copy so sibling contexts never share a backing array.
	attrs := make([]any, len(prev), len(prev)+2)
	copy(attrs, prev)
	return context.WithValue(ctx, ctxKey{}, append(attrs, key, value))
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
