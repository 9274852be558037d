// Package logger provides the process-wide structured logger used by feedsync.
//
// It wraps a zap logger behind printf-style helpers so call sites stay short,
// and exposes the same core as a logr.Logger for packages that take their logger
// from a context.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugared = base.Sugar()
)

// ParseLevel converts a textual level ("debug", "info", "warn", "error") into a zap level.
// An empty string means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Initialize builds a JSON logger writing to stderr at the given level and installs it
// as the process logger.
func Initialize(level zapcore.Level) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = level > zapcore.DebugLevel
	// stdout is reserved for command output
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Set(l)
	return nil
}

// Set replaces the process logger
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugared = l.Sugar()
}

// Get returns the process logger
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// NewLogr returns the process logger as a logr.Logger
func NewLogr() logr.Logger {
	return zapr.NewLogger(Get())
}

// Sync flushes buffered log entries
func Sync() {
	_ = Get().Sync()
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// Debugf logs a formatted message at debug level
func Debugf(format string, args ...any) {
	sugar().Debugf(format, args...)
}

// Infof logs a formatted message at info level
func Infof(format string, args ...any) {
	sugar().Infof(format, args...)
}

// Warnf logs a formatted message at warn level
func Warnf(format string, args ...any) {
	sugar().Warnf(format, args...)
}

// Errorf logs a formatted message at error level
func Errorf(format string, args ...any) {
	sugar().Errorf(format, args...)
}

// Info logs a message at info level
func Info(msg string) {
	sugar().Info(msg)
}

// Warn logs a message at warn level
func Warn(msg string) {
	sugar().Warn(msg)
}

// Infow logs a message with key/value pairs at info level
func Infow(msg string, keysAndValues ...any) {
	sugar().Infow(msg, keysAndValues...)
}

// Warnw logs a message with key/value pairs at warn level
func Warnw(msg string, keysAndValues ...any) {
	sugar().Warnw(msg, keysAndValues...)
}

// Errorw logs a message with key/value pairs at error level
func Errorw(msg string, keysAndValues ...any) {
	sugar().Errorw(msg, keysAndValues...)
}

// Debugw logs a message with key/value pairs at debug level
func Debugw(msg string, keysAndValues ...any) {
	sugar().Debugw(msg, keysAndValues...)
}
