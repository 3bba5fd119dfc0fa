package logutils

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotated log file. Zero MaxSize means lumberjack's 100 MB default.
type FileOptions struct {
	Filename   string
	MaxSize    int
	MaxBackups int
	Compress   bool
}

func (o FileOptions) rotator() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   o.Filename,
		MaxSize:    o.MaxSize,
		MaxBackups: o.MaxBackups,
		LocalTime:  true,
		Compress:   o.Compress,
	}
}

// ZapSyncerWithRotation writes to opts.Filename, rotating it once it outgrows MaxSize megabytes.
func ZapSyncerWithRotation(opts FileOptions) zapcore.WriteSyncer {
	return zapcore.AddSync(opts.rotator())
}
