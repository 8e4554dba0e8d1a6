package utils

import (
	"github.com/sirupsen/logrus"
)

// ExtendedLogger is the logging interface used across the orchestrator.
// It mirrors the logrus surface the codebase relies on plus a Close hook
// for file-backed loggers.
type ExtendedLogger interface {
	// Formatted logging methods
	Infof(format string, v ...any)
	Errorf(format string, v ...any)

	// Standard logging methods
	Info(args ...interface{})
	Error(args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, v ...any)
	Warn(args ...interface{})
	Warnf(format string, v ...any)
	Fatal(args ...interface{})
	Fatalf(format string, v ...any)

	// Structured logging methods
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry

	// Resource management
	Close() error
}

// logrusAdapter wraps a *logrus.Logger so any logger built by pkg/logger
// satisfies ExtendedLogger.
type logrusAdapter struct {
	*logrus.Logger
}

// AdaptLogger wraps an existing logrus logger into an ExtendedLogger.
func AdaptLogger(l *logrus.Logger) ExtendedLogger {
	return &logrusAdapter{Logger: l}
}

// Close is a no-op for plain logrus loggers; file sinks are owned by the
// factory that opened them.
func (a *logrusAdapter) Close() error {
	return nil
}
