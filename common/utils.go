package common

import (
	"go.uber.org/zap"

	"github.com/status-im/verif-proxy/logutils"
)

// LogOnPanic logs a recovered panic with its stack and re-panics.
// Deferred at the top of every goroutine the proxy starts.
func LogOnPanic() {
	if err := recover(); err != nil {
		logutils.ZapLogger().Error("panic in goroutine", zap.Any("error", err), zap.Stack("stacktrace"))
		panic(err)
	}
}
