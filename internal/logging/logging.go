// Package logging provides structured logging for portsweep on top of log/slog.
// Loggers write text or JSON, honor a configurable level, and carry
// component, scan and job fields through derived loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const (
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    LogFormat `yaml:"format" json:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
	Output    string    `yaml:"output" json:"output" mapstructure:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source" mapstructure:"add_source"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: "stderr",
	}
}

// ParseLevel maps a level name to its slog level. Unknown names map to info.
func ParseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps slog.Logger with portsweep-specific helpers.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a logger writing to the output named in cfg: "stdout",
// "stderr" (also the default when empty) or a file path.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	}
	return NewWithWriter(cfg, writer), nil
}

// NewWithWriter creates a logger that writes to w regardless of cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler), config: cfg}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return NewWithWriter(DefaultConfig(), os.Stderr)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return NewWithWriter(DefaultConfig(), io.Discard)
}

// Config returns the configuration the logger was built with.
func (l *Logger) Config() Config {
	return l.config
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...), config: l.config}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithScanID adds a scan ID field to the logger.
func (l *Logger) WithScanID(scanID string) *Logger {
	return l.WithFields("scan_id", scanID)
}

// WithJobID adds a job ID field to the logger.
func (l *Logger) WithJobID(jobID string) *Logger {
	return l.WithFields("job_id", jobID)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// InfoScan logs scan-related information.
func (l *Logger) InfoScan(msg, target string, fields ...any) {
	l.Info(msg, append([]any{"target", target}, fields...)...)
}

// ErrorScan logs scan-related errors.
func (l *Logger) ErrorScan(msg, target string, err error, fields ...any) {
	l.Error(msg, append([]any{"target", target, "error", err}, fields...)...)
}

// InfoDatabase logs database-related information.
func (l *Logger) InfoDatabase(msg string, fields ...any) {
	l.Info(msg, append([]any{"component", "database"}, fields...)...)
}

// ErrorDatabase logs database-related errors.
func (l *Logger) ErrorDatabase(msg string, err error, fields ...any) {
	l.Error(msg, append([]any{"component", "database", "error", err}, fields...)...)
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewDefault())
}

// SetDefault replaces the default logger instance. Nil is ignored.
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger.Load()
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	Default().Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	Default().Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	Default().Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	Default().Error(msg, fields...)
}

// InfoScan logs scan-related information using the default logger.
func InfoScan(msg, target string, fields ...any) {
	Default().InfoScan(msg, target, fields...)
}

// ErrorScan logs scan-related errors using the default logger.
func ErrorScan(msg, target string, err error, fields ...any) {
	Default().ErrorScan(msg, target, err, fields...)
}
