package capture

import "github.com/tphakala/streambridge/internal/logger"

// GetLogger returns the capture package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}
