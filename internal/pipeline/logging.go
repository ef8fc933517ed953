package pipeline

import "github.com/tphakala/streambridge/internal/logger"

// GetLogger returns the pipeline package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}
