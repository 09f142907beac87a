package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newLogger builds the daemon logger and installs it as the global zerolog logger.
func newLogger(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}

	var w io.Writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		w = out
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", format)
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "auctiond").Logger()
	log.Logger = logger
	return logger, nil
}
