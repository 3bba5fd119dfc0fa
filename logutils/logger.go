package logutils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSettings configures the process wide logger.
type LogSettings struct {
	Enabled bool
	Level   string
	File    FileOptions
	// Colors enables the colored console encoder. Ignored when logging to a file.
	Colors bool
}

var (
	mu        sync.RWMutex
	zapLogger = newDefaultLogger()
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func newDefaultLogger() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}

// ZapLogger returns the process wide logger.
func ZapLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zapLogger
}

// ParseLevel accepts ERROR, WARN, INFO, DEBUG and TRACE in any case. TRACE maps to debug.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "DEBUG", "TRACE":
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// OverrideRootLogWithConfig replaces the process wide logger according to settings.
func OverrideRootLogWithConfig(settings LogSettings) error {
	if !settings.Enabled {
		mu.Lock()
		zapLogger = zap.NewNop()
		mu.Unlock()
		return nil
	}

	lvl, err := ParseLevel(settings.Level)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	var core zapcore.Core
	if settings.File.Filename != "" {
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(encoder, ZapSyncerWithRotation(settings.File), level)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		if settings.Colors {
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
	}

	mu.Lock()
	zapLogger = zap.New(core, zap.AddCaller())
	mu.Unlock()
	return nil
}

// ReplaceLogger swaps the process wide logger and returns a function restoring the previous one.
func ReplaceLogger(logger *zap.Logger) func() {
	mu.Lock()
	prev := zapLogger
	zapLogger = logger
	mu.Unlock()
	return func() {
		mu.Lock()
		zapLogger = prev
		mu.Unlock()
	}
}
