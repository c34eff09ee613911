package logger

import (
	"fmt"
	"strings"
	"sync"

	"tw-tick-api/src/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	rootMu sync.RWMutex
	root   *zap.Logger
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
}

// -----------------------------------------------------------------------------

// Setup builds the process-wide zap logger from config. Loggers created
// afterwards write through it.
func Setup(cfg *models.MConfig) error {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	var zc zap.Config
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	if cfg.LogFile != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.LogFile)
	}

	built, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.Name != "" {
		built = built.With(zap.String("service", cfg.Name))
	}

	rootMu.Lock()
	root = built
	rootMu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// ParseLevel accepts zap level names as well as WARNING and CRITICAL.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical", "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered entries of the process logger.
func Sync() {
	rootMu.RLock()
	defer rootMu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(config interface{}, name string) *Logger {
	rootMu.RLock()
	base := root
	rootMu.RUnlock()

	if base == nil {
		var err error
		if base, err = zap.NewProduction(); err != nil {
			base = zap.NewNop()
		}
	}
	return &Logger{name: name, sugar: base.Named(name).Sugar()}
}

// -----------------------------------------------------------------------------

// NewNopLogger discards everything; used by tests.
func NewNopLogger(name string) *Logger {
	return &Logger{name: name, sugar: zap.NewNop().Sugar()}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{name: l.name, sugar: l.sugar.With(keysAndValues...)}
}
