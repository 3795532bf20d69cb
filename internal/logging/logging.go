// Package logging builds the zerolog logger brewv passes to its components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Options struct {
	Level     string // base level name, e.g. "info"
	Verbosity int    // each step lowers the level by one
	Console   io.Writer
	FilePath  string // JSON log file, skipped when empty
}

// DefaultFilePath is $XDG_STATE_HOME/brewv/brewv.log, or "" when the state
// directory cannot be created.
func DefaultFilePath() string {
	p, err := xdg.StateFile("brewv/brewv.log")
	if err != nil {
		return ""
	}
	return p
}

// New returns a logger writing human-readable lines to opts.Console and JSON
// lines to opts.FilePath. The closer releases the log file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := Level(opts.Level, opts.Verbosity)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(console),
	}}

	var closer io.Closer = nopCloser{}
	var fileErr error
	if opts.FilePath != "" {
		f, err := openLogFile(opts.FilePath)
		if err == nil {
			writers = append(writers, f)
			closer = f
		}
		fileErr = err
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", opts.FilePath).Msg("Failed to create log file, logging to console only")
	}
	return logger, closer, nil
}

// Level parses name and lowers it by verbosity steps, down to trace.
func Level(name string, verbosity int) (zerolog.Level, error) {
	if name == "" {
		name = zerolog.InfoLevel.String()
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level %q: %w", name, err)
	}
	level -= zerolog.Level(verbosity)
	if level < zerolog.TraceLevel {
		level = zerolog.TraceLevel
	}
	return level, nil
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
