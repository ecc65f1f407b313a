package core

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyBatch is returned when a run has no events left to score.
var ErrEmptyBatch = errors.New("no events to analyze")

// NewLogger builds the process logger from the logging config. Output goes to
// w, or stderr when w is nil, so report output on stdout stays clean.
func NewLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var logger zerolog.Logger
	if strings.ToLower(strings.TrimSpace(cfg.Format)) == "json" {
		logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	return logger.Level(ParseLogLevel(cfg.Level))
}

// ParseLogLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
