// Package dcontext carries the install's logger on a context.Context,
// so every component logs through an injected sink instead of a
// process-wide logger. The entry point is GetLogger; callers seed the
// context once with WithLogger and everything downstream inherits it.
package dcontext

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled-logging interface handed out by GetLogger. It
// is the subset of logrus.Entry the installer actually calls, kept as
// an interface so tests can substitute a recording fake.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)

	Info(args ...any)
	Infof(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	WithError(err error) *logrus.Entry
}

type loggerKey struct{}

// WithLogger returns a context carrying logger, to be retrieved later
// with GetLogger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger carried by ctx, falling back to the
// standard logrus logger when the context carries none.
func GetLogger(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// GetLoggerWithFields returns ctx's logger extended with the given
// fields, without modifying the context.
func GetLoggerWithFields(ctx context.Context, fields map[string]any) Logger {
	logger := GetLogger(ctx)
	entry, ok := logger.(*logrus.Entry)
	if !ok {
		// A non-logrus Logger can't grow fields; fold them into a
		// prefix so nothing is silently dropped.
		return prefixLogger{Logger: logger, prefix: fmt.Sprintf("%v ", fields)}
	}
	return entry.WithFields(logrus.Fields(fields))
}

type prefixLogger struct {
	Logger
	prefix string
}

func (l prefixLogger) Debugf(format string, args ...any) { l.Logger.Debugf(l.prefix+format, args...) }
func (l prefixLogger) Infof(format string, args ...any)  { l.Logger.Infof(l.prefix+format, args...) }
func (l prefixLogger) Warnf(format string, args ...any)  { l.Logger.Warnf(l.prefix+format, args...) }
func (l prefixLogger) Errorf(format string, args ...any) { l.Logger.Errorf(l.prefix+format, args...) }
