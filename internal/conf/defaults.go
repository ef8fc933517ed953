package conf

import (
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/streambridge/internal/logger"
)

// Default session parameters
const (
	DefaultSampleRate       = 48000
	DefaultChannels         = 2
	DefaultBitrate          = 128000
	DefaultShutdownTimeout  = 3 * time.Second
	DefaultQueueDuration    = 2 * time.Second
	DefaultFrameDuration    = 20 * time.Millisecond
	DefaultFileNameTemplate = "{session}_{timestamp}{ext}"
	DefaultMetricsListen    = "127.0.0.1:9464"
)

// setDefaultConfig registers every key so environment overrides reach Unmarshal
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	// Session configuration
	v.SetDefault("session.samplerate", DefaultSampleRate)
	v.SetDefault("session.channels", DefaultChannels)
	v.SetDefault("session.bitrate", DefaultBitrate)
	v.SetDefault("session.destination", "recording.ogg")
	v.SetDefault("session.shutdowntimeout", DefaultShutdownTimeout)
	v.SetDefault("session.queueduration", DefaultQueueDuration)
	v.SetDefault("session.frameduration", DefaultFrameDuration)
	v.SetDefault("session.filenametemplate", DefaultFileNameTemplate)

	// Capture configuration
	v.SetDefault("capture.source", "tone")
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.chunkframes", 480)
	v.SetDefault("capture.tonehz", 440.0)
	v.SetDefault("capture.gain", 1.0)
	v.SetDefault("capture.duration", time.Duration(0))

	// Logging configuration
	v.SetDefault("log.level", logger.DefaultLogLevel)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.console", logger.DefaultConsoleEnabled)
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", logger.DefaultLogPath)
	v.SetDefault("log.file.maxsize", logger.DefaultMaxSize)
	v.SetDefault("log.file.maxage", logger.DefaultMaxAge)
	v.SetDefault("log.file.maxbackups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("log.modulelevels", map[string]string{})

	// Metrics configuration
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)

	// Telemetry configuration
	v.SetDefault("telemetry.sentrydsn", "")
}
