package observability

import "log/slog"

// NewSlogLogger bridges the framework logger onto a slog.Logger, so binaries
// can plug in any slog handler (tint, JSON, text) without library packages
// knowing about it.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{inner: logger}
}

type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.inner.Debug(msg, attrs(fields)...)
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.inner.Info(msg, attrs(fields)...)
}

func (l *slogLogger) Error(msg string, fields ...Field) {
	l.inner.Error(msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}
