package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with a keys-and-values convenience API
type Logger struct {
	zap     *zap.Logger
	sugared *zap.SugaredLogger
}

// New creates a logger for the given level and environment.
// Production environments log JSON; everything else logs for humans.
func New(level, environment string) *Logger {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if parsed, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		z = zap.NewNop()
	}

	return &Logger{zap: z, sugared: z.Sugar()}
}

// NewNop returns a no-op logger for tests
func NewNop() *Logger {
	z := zap.NewNop()
	return &Logger{zap: z, sugared: z.Sugar()}
}

// Zap exposes the underlying zap logger for packages that want typed fields
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// With returns a child logger with the given context attached
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	s := l.sugared.With(keysAndValues...)
	return &Logger{zap: s.Desugar(), sugared: s}
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugared.Debugw(msg, keysAndValues...)
}

// Info logs at info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugared.Infow(msg, keysAndValues...)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugared.Warnw(msg, keysAndValues...)
}

// Error logs at error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugared.Errorw(msg, keysAndValues...)
}

// Fatal logs at fatal level and exits
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugared.Fatalw(msg, keysAndValues...)
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
