// Package logging wraps go.uber.org/zap into the small facade the rest of
// the workspace depends on: a package-level accessor plus a constructor
// that turns a level string into a configured logger.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	current = zap.NewNop()
)

// Config controls the sink and format of the process-wide logger.
type Config struct {
	Level  string // debug, info, warn, error; default info
	Format string // json, console; default console
}

// New builds a zap.Logger from Config and installs it as the package-level
// logger returned by L(). Parse failures on Level fall back to info rather
// than erroring, since a bad log level shouldn't keep the process from
// starting.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	format := cfg.Format
	if format == "" {
		format = "console"
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = logger
	mu.Unlock()

	return logger, nil
}

// L returns the process-wide logger. Before New is called it is a no-op
// sink, so packages constructed early in startup (or in tests) never need
// a nil check.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Iteration logs one structured entry per loop iteration.
func Iteration(log *zap.Logger, sessionID string, iteration, explorationCount int) {
	nonNil(log).Info("loop.iteration",
		zap.String("session_id", sessionID),
		zap.Int("iteration", iteration),
		zap.Int("exploration_count", explorationCount),
	)
}

// ToolExecution logs one structured entry per tool invocation.
func ToolExecution(log *zap.Logger, toolName, classification string, success bool, durationMS int64) {
	nonNil(log).Info("tool.execute",
		zap.String("tool", toolName),
		zap.String("classification", classification),
		zap.Bool("success", success),
		zap.Int64("duration_ms", durationMS),
	)
}

// RetryAttempt logs one structured entry per transport retry.
func RetryAttempt(log *zap.Logger, attempt int, delayMS int64, reason string) {
	nonNil(log).Warn("transport.retry",
		zap.Int("attempt", attempt),
		zap.Int64("delay_ms", delayMS),
		zap.String("reason", reason),
	)
}

func nonNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
