package vocalmerge

import "context"

type loggerKey struct{}

// ContextWithLogger attaches a request-scoped logger to ctx.
func ContextWithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// LoggerFrom returns the logger attached to ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback Logger) Logger {
	if log, ok := ctx.Value(loggerKey{}).(Logger); ok && log != nil {
		return log
	}
	return fallback
}
