package elements

import "github.com/tphakala/streambridge/internal/logger"

// GetLogger returns the elements module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("elements")
}
