package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level" mapstructure:"level"`          // default log level for all modules
	Timezone     string            `yaml:"timezone" json:"timezone" mapstructure:"timezone"`                 // "Local", "UTC", or IANA timezone name
	Console      *ConsoleOutput    `yaml:"console" json:"console" mapstructure:"console"`                    // console output configuration
	FileOutput   *FileOutput       `yaml:"file_output" json:"file_output" mapstructure:"file"`               // file output configuration
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels" mapstructure:"modulelevels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output uses human-readable text format without timestamps;
// the execution environment (journald, Docker) adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
	Format  string `yaml:"format" json:"format" mapstructure:"format"` // "text" (default) or "json"
}

// FileOutput represents file logging configuration.
// File output uses JSON format with RFC3339 timestamps and is rotated by lumberjack.
type FileOutput struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path       string `yaml:"path" json:"path" mapstructure:"path"`
	MaxSize    int    `yaml:"max_size" json:"max_size" mapstructure:"maxsize"`          // megabytes before rotation
	MaxAge     int    `yaml:"max_age" json:"max_age" mapstructure:"maxage"`             // days to keep rotated logs (0 = no limit)
	MaxBackups int    `yaml:"max_backups" json:"max_backups" mapstructure:"maxbackups"` // rotated files to keep (0 = no limit)
	Compress   bool   `yaml:"compress" json:"compress" mapstructure:"compress"`
	Level      string `yaml:"level" json:"level" mapstructure:"level"`
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/streambridge.log"
	DefaultMaxSize        = 100 // MB before rotation
	DefaultMaxAge         = 30  // days to keep rotated files
	DefaultMaxBackups     = 10
	DefaultConsoleEnabled = true
)

// applyConfigDefaults fills nil sections so a zero config still logs to the console
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.DefaultLevel
	}

	if cfg.FileOutput != nil {
		if cfg.FileOutput.Path == "" {
			cfg.FileOutput.Path = DefaultLogPath
		}
		if cfg.FileOutput.Level == "" {
			cfg.FileOutput.Level = cfg.DefaultLevel
		}
		if cfg.FileOutput.MaxSize == 0 {
			cfg.FileOutput.MaxSize = DefaultMaxSize
		}
	}
}
