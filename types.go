package ucenter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Logger is the structured logger used across the package. Messages are
// followed by alternating key/value pairs.
type Logger interface {
	Trace(message string, args ...any)
	Debug(message string, args ...any)
	Info(message string, args ...any)
	Warn(message string, args ...any)
	Error(message string, args ...any)
	Fatal(message string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to LoggerProvider.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ResolveLogger returns the provider and the logger for name. The provider
// wins when it yields a logger, otherwise fallback is used, otherwise the
// default zap backed logger.
func ResolveLogger(name string, provider LoggerProvider, fallback Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if logger := provider.GetLogger(name); logger != nil {
			return provider, logger
		}
	}

	if fallback == nil {
		fallback = defaultLogger()
	}

	return LoggerProviderFunc(func(string) Logger { return fallback }), fallback
}

// NewZapLogger adapts a zap logger to Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{s: l.Sugar()}
}

// ZapLoggerProvider returns a provider that names child loggers after the
// requesting component.
func ZapLoggerProvider(l *zap.Logger) LoggerProvider {
	if l == nil {
		l = zap.NewNop()
	}
	return LoggerProviderFunc(func(name string) Logger {
		return NewZapLogger(l.Named(name))
	})
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Trace(message string, args ...any) { z.s.Debugw(message, args...) }
func (z zapLogger) Debug(message string, args ...any) { z.s.Debugw(message, args...) }
func (z zapLogger) Info(message string, args ...any)  { z.s.Infow(message, args...) }
func (z zapLogger) Warn(message string, args ...any)  { z.s.Warnw(message, args...) }
func (z zapLogger) Error(message string, args ...any) { z.s.Errorw(message, args...) }

// Fatal logs at error level, a library must not exit the host process.
func (z zapLogger) Fatal(message string, args ...any) { z.s.Errorw(message, args...) }

func (z zapLogger) WithContext(context.Context) Logger { return z }

func defaultLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("[ERR] UCENTER unable to build default logger: %v\n", err)
		l = zap.NewNop()
	}
	return NewZapLogger(l.Named("ucenter"))
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any)                 {}
func (nopLogger) Debug(string, ...any)                 {}
func (nopLogger) Info(string, ...any)                  {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (nopLogger) Fatal(string, ...any)                 {}
func (n nopLogger) WithContext(context.Context) Logger { return n }
