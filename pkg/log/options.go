package log

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// FileOptions 定义了日志文件存储的配置选项
type FileOptions struct {
	// Filename is the file to write logs to. Backups are kept in the same directory.
	Filename string `json:"filename,omitempty" mapstructure:"filename"`
	// MaxSize is the size in megabytes a file can grow to before it is rotated.
	MaxSize int `json:"max-size,omitempty" mapstructure:"max-size"`
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int `json:"max-backups,omitempty" mapstructure:"max-backups"`
	// MaxAge is the number of days to retain rotated files.
	MaxAge int `json:"max-age,omitempty" mapstructure:"max-age"`
	// Compress rotated files with gzip.
	Compress bool `json:"is-compression,omitempty" mapstructure:"is-compression"`
	// LocalTime uses the local time zone for backup file names.
	LocalTime bool `json:"local-time,omitempty" mapstructure:"local-time"`
}

// NewFileOptions returns file storage defaults.
func NewFileOptions() *FileOptions {
	return &FileOptions{
		Filename:   "tokenservice.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
		LocalTime:  true,
	}
}

// Options contains configuration options for logging.
type Options struct {
	// Level 日志级别. 可选值: debug, info, warn, error, dpanic, panic, and fatal.
	Level string `json:"level,omitempty" mapstructure:"level"`
	// Format specifies the log output format. Valid values are: console and json.
	Format string `json:"format,omitempty" mapstructure:"format"`
	// EnableColor only applies to the console format.
	EnableColor bool `json:"enable-color" mapstructure:"enable-color"`
	// DisableCaller specifies whether to include caller information in the log.
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`
	// DisableStacktrace specifies whether to record a stack trace for all messages at or above panic level.
	DisableStacktrace bool `json:"disable-stacktrace,omitempty" mapstructure:"disable-stacktrace"`
	// EnableFileStorage writes logs to a rotated file in addition to OutputPaths.
	EnableFileStorage bool `json:"enable-file-storage,omitempty" mapstructure:"enable-file-storage"`
	// FileConfig 文件存储配置
	FileConfig *FileOptions `json:"file-config,omitempty" mapstructure:"file-config"`
	// OutputPaths specifies the output paths for the logs.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Level:       zapcore.InfoLevel.String(),
		Format:      "console",
		EnableColor: true,
		OutputPaths: []string{"stdout"},
		FileConfig:  NewFileOptions(),
	}
}

// Validate verifies flags passed to Options.
func (o *Options) Validate() []error {
	errs := []error{}

	if _, err := zapcore.ParseLevel(o.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q: %w", o.Level, err))
	}
	if o.Format != "console" && o.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q, must be console or json", o.Format))
	}
	if o.EnableFileStorage && (o.FileConfig == nil || o.FileConfig.Filename == "") {
		errs = append(errs, fmt.Errorf("log file storage is enabled but no filename is configured"))
	}

	return errs
}

// AddFlags adds command line flags for the configuration.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log output `LEVEL`.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Disable output of caller information in the log.")
	fs.BoolVar(&o.DisableStacktrace, "log.disable-stacktrace", o.DisableStacktrace, ""+
		"Disable the log to record a stack trace for all messages at or above panic level.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Enable output ansi colors in console format logs.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output `FORMAT`, support console or json format.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Output paths of log.")
	fs.BoolVar(&o.EnableFileStorage, "log.enable-file-storage", o.EnableFileStorage, "Enable log file storage.")

	if o.FileConfig != nil {
		fs.StringVar(&o.FileConfig.Filename, "log.file-config.filename", o.FileConfig.Filename, "Log file name.")
		fs.IntVar(&o.FileConfig.MaxSize, "log.file-config.max-size", o.FileConfig.MaxSize, "Maximum log file size in MB.")
		fs.IntVar(&o.FileConfig.MaxBackups, "log.file-config.max-backups", o.FileConfig.MaxBackups, "Maximum number of old log files to retain.")
		fs.IntVar(&o.FileConfig.MaxAge, "log.file-config.max-age", o.FileConfig.MaxAge, "Maximum number of days to retain old log files.")
		fs.BoolVar(&o.FileConfig.Compress, "log.file-config.is-compression", o.FileConfig.Compress, "Whether to compress old log files.")
		fs.BoolVar(&o.FileConfig.LocalTime, "log.file-config.local-time", o.FileConfig.LocalTime, "Whether to use local time for log file rotation.")
	}
}
