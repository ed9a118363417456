package logging

import (
	"context"

	"github.com/thriftmux/thriftmux/internal/logger"
)

type contextKey int

const (
	contextKeyLoggers contextKey = 1 + iota
	contextKeyInjectedField
)

type SubsystemLoggers map[Subsystem]logger.Logger

func SubsystemLoggersWithUniversalLogger(l logger.Logger) SubsystemLoggers {
	loggers := make(SubsystemLoggers)
	for _, s := range AllSubsystems {
		loggers[s] = l
	}
	return loggers
}

func WithLoggers(ctx context.Context, loggers SubsystemLoggers) context.Context {
	return context.WithValue(ctx, contextKeyLoggers, loggers)
}

type injectedField struct {
	field  string
	value  interface{}
	parent *injectedField
}

// WithInjectedField adds field to every logger obtained from ctx through GetLogger.
func WithInjectedField(ctx context.Context, field string, value interface{}) context.Context {
	var parent *injectedField
	if p, ok := ctx.Value(contextKeyInjectedField).(*injectedField); ok {
		parent = p
	}
	return context.WithValue(ctx, contextKeyInjectedField, &injectedField{field, value, parent})
}

// GetLogger returns the logger for subsys, or a null logger if ctx has none.
func GetLogger(ctx context.Context, subsys Subsystem) logger.Logger {
	loggers, ok := ctx.Value(contextKeyLoggers).(SubsystemLoggers)
	if !ok || loggers == nil {
		return logger.NewNullLogger()
	}
	l, ok := loggers[subsys]
	if !ok {
		return logger.NewNullLogger()
	}
	l = l.WithField(SubsysField, subsys)

	fields := make(logger.Fields)
	// innermost wins
	for inj, _ := ctx.Value(contextKeyInjectedField).(*injectedField); inj != nil; inj = inj.parent {
		if _, ok := fields[inj.field]; !ok {
			fields[inj.field] = inj.value
		}
	}
	return l.WithFields(fields)
}
