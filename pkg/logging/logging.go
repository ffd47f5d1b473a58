// Package logging builds the zap loggers used across cadence.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Format selects the log encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config describes the logger to build
type Config struct {
	Level  LogLevel
	Format Format
	// Output defaults to stderr so command output on stdout stays clean
	Output io.Writer
}

// ParseLevel converts a level name to a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(level)) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo, "":
		return zapcore.InfoLevel, nil
	case LogLevelWarn, "warning":
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}
}

// New builds a logger for the given configuration
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case FormatJSON, "":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s (valid: json, console)", cfg.Format)
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}

// WithComponent returns a named child logger carrying the component field
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.Named(component).With(zap.String("component", component))
}

// WithResource adds the resource id to every entry
func WithResource(logger *zap.Logger, resourceID string) *zap.Logger {
	return logger.With(zap.String("resource_id", resourceID))
}

// LogError logs a failed operation with context
func LogError(logger *zap.Logger, operation string, err error, fields ...zap.Field) {
	logger.Error("operation failed", append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)...)
}
