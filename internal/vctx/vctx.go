// Package vctx provides a context-carried structured logger, following the
// same WithValue/GetLogger shape the teacher's registry/context package used
// around golang.org/x/net/context, adapted to the standard library context.
package vctx

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// Logger is a leveled-logging interface matching logrus's surface so callers
// never import logrus directly.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

type entry struct {
	*logrus.Entry
}

var _ Logger = (*entry)(nil)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a copy of ctx whose logger (or the standard logger, if
// none is set yet) has the given fields attached.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, &entry{logrusEntry(ctx).WithFields(fields)})
}

// GetLogger returns the logger carried by ctx, falling back to the standard
// logrus logger if none was attached.
func GetLogger(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return &entry{logrus.NewEntry(logrus.StandardLogger())}
}

func logrusEntry(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(loggerKey{}).(*entry); ok {
		return e.Entry
	}
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		if e, ok := l.(*entry); ok {
			return e.Entry
		}
		// logger present but not our concrete type; its fields cannot be
		// read, so start from the standard logger and record its type name.
		return logrus.NewEntry(logrus.StandardLogger()).WithField("wrapped_logger", fmt.Sprintf("%T", l))
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ConfigureLogging sets the package-wide logrus formatter and level, mirroring
// the teacher's cmd/registry/main.go configureLogging.
func ConfigureLogging(level, formatter string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(lvl)

	switch formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("unsupported log formatter: %q", formatter)
	}
	return nil
}
