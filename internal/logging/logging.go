// Package logging builds the zerolog loggers used across the runtime.
//
// Logging is off by default so the runtime stays silent inside user programs.
// Set STRAND_LOG=1 (or STRAND_LOG=json) to enable it, and STRAND_LOG_LEVEL to
// one of debug, info, warn, error to pick the level (default info).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger for the named component, configured from the
// STRAND_LOG and STRAND_LOG_LEVEL environment variables.
func New(component string) zerolog.Logger {
	mode := strings.ToLower(os.Getenv("STRAND_LOG"))
	if mode == "" || mode == "0" || mode == "off" {
		return zerolog.New(io.Discard)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if mode == "json" {
		w = os.Stderr
	}

	return zerolog.New(w).
		Level(level()).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func level() zerolog.Level {
	switch strings.ToLower(os.Getenv("STRAND_LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
