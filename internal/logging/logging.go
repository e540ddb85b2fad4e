// Package logging configures the process-wide zerolog logger and hands out
// component-scoped sub-loggers, the way the pack's monitoring agents
// structure diagnostic output (see DESIGN.md).
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	var w zerolog.ConsoleWriter
	if isatty(os.Stderr) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		base = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetLevel adjusts the global minimum log level.
func SetLevel(level zerolog.Level) {
	base = base.Level(level)
}

// Component returns a logger tagged with component=name, the sub-logger
// pattern used throughout internal/sampler, internal/monitor, and
// internal/chart for per-subsystem diagnostics.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// isatty reports whether f refers to a terminal, used to pick between
// human-readable console output and plain JSON (e.g. under a daemon or
// piped to a log collector).
func isatty(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
