// Package logger wraps slog for the provisioning tool. Diagnostics go to
// stderr so command output stays scriptable.
package logger

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger with a Fatal convenience for CLI flows.
type Logger struct {
	*slog.Logger
}

// New creates a Logger at the given slog level.
func New(level int) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(level)})),
	}
}

// Fatal logs at error level and exits with a non-zero status.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}
