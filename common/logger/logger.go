// Package logger provides the shared process logger.
package logger

import (
	"sync"

	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/apimirror/gateway/common/config"
)

// Logger is the process-wide structured logger. Request handlers should
// prefer the request-scoped logger from gmw.GetLogger.
var Logger glog.Logger = glog.Shared.Named("gateway")

var setupOnce sync.Once

// SetupLogger applies the configured log level. Safe to call more than once.
func SetupLogger() {
	setupOnce.Do(func() {
		level := glog.LevelInfo
		if config.DebugEnabled {
			level = glog.LevelDebug
		}
		if err := Logger.ChangeLevel(level); err != nil {
			Logger.Warn("change log level failed")
		}
	})
}
