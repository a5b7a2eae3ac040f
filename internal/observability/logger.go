// Package observability owns logger construction for the CLI and the
// long-running agent.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the shared logger for command-line entry points.
// Defaults to a no-op logger until InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger builds the process logger.
//
// level is a zap level string (debug, info, warn, error). format is
// "json" for structured production output or "console" for
// human-readable development output.
func InitCLILogger(level, format string) error {
	logger, err := NewLogger(level, format)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger constructs a zap logger with the given level and format.
func NewLogger(level, format string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q (json or console)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Sync flushes buffered log entries. Safe to call on shutdown paths.
func Sync() {
	_ = CLILogger.Sync()
}
