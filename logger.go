package xenconsole

import "log/slog"

// Logger is the interface for structured logging.
// *slog.Logger satisfies it, so most callers pass one in directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the process-wide slog logger tagged with this package.
func defaultLogger() Logger {
	return slog.Default().With("component", "xenconsole")
}
