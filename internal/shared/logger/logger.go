package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a structured JSON logger. Every record carries the service name,
// a machine-readable action, the hostname and the request id from the
// context, which keeps log lines joinable across service hops.
type Logger struct {
	service  string
	hostname string
	sl       *slog.Logger
}

// New creates a logger for the named service writing JSON to stdout.
func New(service string) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Logger{
		service:  service,
		hostname: hostname,
		sl:       slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

// Unexported key type so outside packages cannot collide with our context keys.
type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID returns a context carrying a request id (useful for HTTP/mq hops).
func (l *Logger) WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// RequestID returns the request id carried by the context, if any. The
// workflow core reuses it as the correlation id on lifecycle events.
func RequestID(ctx context.Context) string {
	return requestIDFrom(ctx)
}

func requestIDFrom(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (l *Logger) attrs(ctx context.Context, action string, details map[string]any) []any {
	out := []any{
		slog.String("service", l.service),
		slog.String("action", action),
		slog.String("hostname", l.hostname),
		slog.String("request_id", requestIDFrom(ctx)),
	}
	for k, v := range details {
		out = append(out, slog.Any(k, v))
	}
	return out
}

func (l *Logger) Info(ctx context.Context, action, msg string, details map[string]any) {
	l.sl.InfoContext(ctx, msg, l.attrs(ctx, action, details)...)
}

func (l *Logger) Debug(ctx context.Context, action, msg string, details map[string]any) {
	l.sl.DebugContext(ctx, msg, l.attrs(ctx, action, details)...)
}

func (l *Logger) Error(ctx context.Context, action, msg string, err error) {
	attrs := l.attrs(ctx, action, nil)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.sl.ErrorContext(ctx, msg, attrs...)
}
