// Package conf loads streambridge settings from defaults, config.yaml,
// STREAMBRIDGE_* environment variables and command line flags, in that
// order of increasing precedence.
package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding settings
const EnvPrefix = "STREAMBRIDGE"

// Settings contains all configuration options for streambridge
type Settings struct {
	Debug     bool              `mapstructure:"debug" yaml:"debug"`
	Session   SessionSettings   `mapstructure:"session" yaml:"session"`
	Capture   CaptureSettings   `mapstructure:"capture" yaml:"capture"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsSettings   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
}

// SessionSettings configures the encode pipeline of a recording session.
// Sample rate, channel count and bitrate are not validated here: the
// pipeline rejects values it cannot build when the session initializes.
type SessionSettings struct {
	SampleRate       int           `mapstructure:"samplerate" yaml:"samplerate"`
	Channels         int           `mapstructure:"channels" yaml:"channels"`
	Bitrate          int           `mapstructure:"bitrate" yaml:"bitrate"`
	Destination      string        `mapstructure:"destination" yaml:"destination"`           // file path or udp://, rtp://, tcp://, null:// endpoint
	ShutdownTimeout  time.Duration `mapstructure:"shutdowntimeout" yaml:"shutdowntimeout"`   // bounded end-of-stream wait on stop
	QueueDuration    time.Duration `mapstructure:"queueduration" yaml:"queueduration"`       // audio held by the ingestion queue before feed blocks
	FrameDuration    time.Duration `mapstructure:"frameduration" yaml:"frameduration"`       // streaming granularity
	FileNameTemplate string        `mapstructure:"filenametemplate" yaml:"filenametemplate"` // used when destination is a directory
}

// CaptureSettings configures the audio producer used by the record command
type CaptureSettings struct {
	Source      string        `mapstructure:"source" yaml:"source"` // tone, silence, stdin, file, soundcard
	File        string        `mapstructure:"file" yaml:"file"`
	Device      string        `mapstructure:"device" yaml:"device"`
	ChunkFrames int           `mapstructure:"chunkframes" yaml:"chunkframes"`
	ToneHz      float64       `mapstructure:"tonehz" yaml:"tonehz"`
	Gain        float64       `mapstructure:"gain" yaml:"gain"`
	Duration    time.Duration `mapstructure:"duration" yaml:"duration"` // 0 runs until interrupted or the source ends
}

// LogSettings configures console and file logging
type LogSettings struct {
	Level        string            `mapstructure:"level" yaml:"level"`
	Format       string            `mapstructure:"format" yaml:"format"`
	Console      bool              `mapstructure:"console" yaml:"console"`
	Timezone     string            `mapstructure:"timezone" yaml:"timezone"`
	File         LogFileSettings   `mapstructure:"file" yaml:"file"`
	ModuleLevels map[string]string `mapstructure:"modulelevels" yaml:"modulelevels"`
}

// LogFileSettings configures the rotated log file
type LogFileSettings struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSize    int    `mapstructure:"maxsize" yaml:"maxsize"`
	MaxAge     int    `mapstructure:"maxage" yaml:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups" yaml:"maxbackups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MetricsSettings configures the status and Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TelemetrySettings configures optional error reporting
type TelemetrySettings struct {
	SentryDSN string `mapstructure:"sentrydsn" yaml:"sentrydsn"`
}

// LoggingConfig converts log settings into the logger package configuration
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Log.Level
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     s.Log.Timezone,
		Console: &logger.ConsoleOutput{
			Enabled: s.Log.Console,
			Level:   level,
			Format:  s.Log.Format,
		},
		ModuleLevels: s.Log.ModuleLevels,
	}
	if s.Log.File.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled:    true,
			Path:       s.Log.File.Path,
			MaxSize:    s.Log.File.MaxSize,
			MaxAge:     s.Log.File.MaxAge,
			MaxBackups: s.Log.File.MaxBackups,
			Compress:   s.Log.File.Compress,
			Level:      level,
		}
	}
	return cfg
}

// Load reads configuration into a new Settings using the global viper
// instance, so flags bound with viper.BindPFlags take precedence.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	return load(viper.GetViper(), configFile)
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	setDefaultConfig(v)
	configureEnvironmentVariables(v)

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// readConfigFile reads an explicit config file, or searches the default
// paths. A missing config in the default paths is not an error.
func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if configFile == "" && errors.As(err, &notFound) {
		return nil
	}

	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", "read_config").
		FileContext(configFile, 0).
		Build()
}

// DefaultConfigPaths returns the directories searched for config.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "streambridge"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "streambridge"))
		}
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/streambridge")
	}

	return paths
}

// Defaults returns the default settings
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)

	settings := &Settings{}
	// Defaults always decode; an error here is a programming mistake in setDefaultConfig
	if err := v.Unmarshal(settings); err != nil {
		panic(err)
	}
	return settings
}

// WriteDefaultConfig writes the default settings as YAML to path.
// An existing file is never overwritten.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_defaults").
			Build()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(err, path, 0)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.FileError(err, path, 0)
	}
	defer func() { _ = f.Close() }()

	header := "# streambridge configuration\n"
	if _, err := f.WriteString(header + string(data)); err != nil {
		return errors.FileError(err, path, int64(len(data)))
	}

	return f.Close()
}

// configureEnvironmentVariables maps session.samplerate to STREAMBRIDGE_SESSION_SAMPLERATE
func configureEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
