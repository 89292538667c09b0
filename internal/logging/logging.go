// Package logging sets up the process-wide zap logger. Call Init once from
// main, then Named to get named child loggers for a component.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// Init builds the base logger. level is one of debug/info/warn/error
// (defaults to info on an unrecognized value). format "console" is used for
// local/dev runs; anything else (including empty) yields JSON.
func Init(level, format string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(format, "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		// A broken logger config should not stop the process from booting;
		// fall back to a no-frills logger that writes to stderr.
		logger = zap.NewExample()
		logger.Sugar().Warnf("falling back to example logger: %v", err)
	}
	base = logger
	return base
}

// L returns the base logger, initializing a sane default if Init was never
// called (e.g. in tests).
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base, _ = zap.NewProduction()
	}
	return base
}

// Named returns a child logger tagged with component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes buffered log entries; call from a deferred main.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
