// Package logging builds the slog handler used by the CLI.
package logging

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options selects the handler.
type Options struct {
	// Format is "json" for JSON lines, anything else for text.
	Format string

	// Verbose lowers the level to debug. The default level is warn, so a
	// quiet run only reports problems.
	Verbose bool

	// Color forces (true) or disables (false) the colored terminal handler.
	// Nil detects a terminal on the writer.
	Color *bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(NewHandler(w, opts))
}

// NewHandler returns the handler New wraps.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}

	if opts.Format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	color := IsTerminal(w)
	if opts.Color != nil {
		color = *opts.Color
	}
	if color {
		return tint.NewHandler(w, &tint.Options{
			NoColor:    runtime.GOOS == "windows",
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
