// Package logger provides structured logging configuration for the engine.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Human-readable console output
}

// New creates a configured zerolog logger
func New(cfg Config) zerolog.Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.Kitchen,
	}

	if cfg.Pretty {
		// Pretty console output for development
		output.TimeFormat = "15:04:05"
		return zerolog.New(output).With().Timestamp().Caller().Logger()
	}

	// JSON output for production
	return zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
}
