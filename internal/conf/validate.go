package conf

import (
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/tphakala/streambridge/internal/logger"
)

// CaptureSources lists the accepted capture.source values
var CaptureSources = []string{"tone", "silence", "stdin", "file", "soundcard"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks settings that the pipeline does not validate itself.
// Session format parameters are left to pipeline construction.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateSessionSettings(&settings.Session)...)
	ve.Errors = append(ve.Errors, validateCaptureSettings(&settings.Capture)...)
	ve.Errors = append(ve.Errors, validateLogSettings(&settings.Log)...)
	ve.Errors = append(ve.Errors, validateMetricsSettings(&settings.Metrics)...)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateSessionSettings(s *SessionSettings) []string {
	var errs []string

	if s.Destination == "" {
		errs = append(errs, "session.destination must not be empty")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "session.shutdowntimeout must be positive")
	}
	if s.QueueDuration <= 0 {
		errs = append(errs, "session.queueduration must be positive")
	}
	if s.FrameDuration <= 0 || s.FrameDuration > time.Second {
		errs = append(errs, "session.frameduration must be between 0 and 1s")
	}

	return errs
}

func validateCaptureSettings(c *CaptureSettings) []string {
	var errs []string

	if !slices.Contains(CaptureSources, c.Source) {
		errs = append(errs, fmt.Sprintf("capture.source %q is not one of %v", c.Source, CaptureSources))
	}
	if c.Source == "file" && c.File == "" {
		errs = append(errs, "capture.file is required when capture.source is file")
	}
	if c.ChunkFrames <= 0 {
		errs = append(errs, "capture.chunkframes must be positive")
	}
	if c.Duration < 0 {
		errs = append(errs, "capture.duration must not be negative")
	}
	if c.Gain < 0 {
		errs = append(errs, "capture.gain must not be negative")
	}

	return errs
}

func validateLogSettings(l *LogSettings) []string {
	var errs []string

	if !logger.ValidLevel(l.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q is not a valid level", l.Level))
	}
	if l.Format != "text" && l.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", l.Format))
	}
	for module, level := range l.ModuleLevels {
		if !logger.ValidLevel(level) {
			errs = append(errs, fmt.Sprintf("log.modulelevels.%s %q is not a valid level", module, level))
		}
	}

	return errs
}

func validateMetricsSettings(m *MetricsSettings) []string {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []string{fmt.Sprintf("metrics.listen %q: %v", m.Listen, err)}
	}
	return nil
}
