// Package logging configures the global zerolog logger for fluxbuild.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/fluxbase-eu/fluxbuild/internal/config"
)

// Options controls logger setup
type Options struct {
	Level  string
	Format string
	// File receives every entry as JSON lines when set
	File string
	// Debug forces the debug level
	Debug bool
	// Quiet raises the level to warn
	Quiet bool
	// Out defaults to os.Stderr
	Out io.Writer
}

// FromConfig builds Options from the log section of the configuration
func FromConfig(cfg config.LogConfig, debug bool) Options {
	return Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   cfg.File,
		Debug:  debug,
	}
}

// Setup installs the global logger. The returned writer must be closed to
// flush the log file.
func Setup(opts Options) (*Writer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = out
	if opts.Format != "json" {
		console = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(out),
		}
	}

	var file io.WriteCloser
	if opts.File != "" {
		f, err := OpenFile(opts.File)
		if err != nil {
			return nil, err
		}
		file = f
	}

	w := NewWriter(console, file)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(Level(opts))

	return w, nil
}

// Level resolves the effective level for opts
func Level(opts Options) zerolog.Level {
	switch {
	case opts.Debug:
		return zerolog.DebugLevel
	case opts.Quiet:
		return zerolog.WarnLevel
	}
	return parseLogLevel(opts.Level)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
