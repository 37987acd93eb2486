// Package logging builds the zerolog logger that carries the progress trace.
//
// The run mode decides the shape of the trace: an interactive run writes a
// human-readable console format to stdout, an unattended run (cron) writes
// JSON lines to the configured log file. The logger is built once and handed
// to every component constructor; nothing reads a process-wide flag.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects the output shape.
type Mode string

const (
	Interactive Mode = "terminal"
	Unattended  Mode = "cron"
)

// ParseMode accepts the values of the executed_from setting.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "terminal", "interactive":
		return Interactive, nil
	case "cron", "unattended":
		return Unattended, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (expected terminal or cron)", s)
	}
}

// Options configures New.
type Options struct {
	Mode  Mode
	Level string
	// File receives JSON lines in unattended mode; stderr when empty
	File string
	// Out overrides the destination in both modes
	Out     io.Writer
	NoColor bool
}

// New returns a logger for opts and a closer for any file it opened.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	out, closer, err := destination(opts)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var writer io.Writer = out
	if opts.Mode != Unattended {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    opts.NoColor || os.Getenv("NO_COLOR") != "",
		}
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, closer, nil
}

func destination(opts Options) (io.Writer, io.Closer, error) {
	if opts.Out != nil {
		return opts.Out, nopCloser{}, nil
	}
	if opts.Mode != Unattended {
		return os.Stdout, nopCloser{}, nil
	}
	if opts.File == "" {
		return os.Stderr, nopCloser{}, nil
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	return f, f, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	default:
		if l, err := zerolog.ParseLevel(level); err == nil {
			return l
		}
		return zerolog.InfoLevel
	}
}

// Component derives a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
