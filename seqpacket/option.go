//go:build linux

package seqpacket

import (
	"log/slog"
	"time"

	"github.com/borzel/xenconsole"
)

// Default configuration values.
const (
	defaultRetryInterval = 50 * time.Millisecond
)

type pipeOptions struct {
	logger         xenconsole.Logger
	connectTimeout time.Duration
	retryInterval  time.Duration
}

// Option configures a Pipe.
type Option func(*pipeOptions)

// ConnectTimeoutOption makes Connect wait up to timeout for the server to
// start listening. Zero, the default, means a single attempt.
func ConnectTimeoutOption(timeout time.Duration) Option {
	return func(o *pipeOptions) {
		o.connectTimeout = timeout
	}
}

// RetryIntervalOption sets the pause between connection attempts.
func RetryIntervalOption(interval time.Duration) Option {
	return func(o *pipeOptions) {
		o.retryInterval = interval
	}
}

// LoggerOption sets the logger used by the pipe.
func LoggerOption(logger xenconsole.Logger) Option {
	return func(o *pipeOptions) {
		o.logger = logger
	}
}

func checkOptions(opts *pipeOptions) {
	if opts.retryInterval <= 0 {
		opts.retryInterval = defaultRetryInterval
	}

	if opts.connectTimeout < 0 {
		opts.connectTimeout = 0
	}

	if opts.logger == nil {
		opts.logger = slog.Default().With("component", "seqpacket")
	}
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// ListenerLoggerOption sets the logger for the listener.
func ListenerLoggerOption(logger xenconsole.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}
