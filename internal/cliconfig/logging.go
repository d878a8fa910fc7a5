package cliconfig

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// NewLogger builds the process logger: human-readable console output by
// default, one JSON object per line when format is "json". The level is
// applied process-wide so a reloaded config can change it later. Colors
// are only used when w is a terminal.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	if err := SetLogLevel(level); err != nil {
		return zerolog.Nop(), err
	}
	if format != LogFormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: !isTerminal(w)}
	}
	return zerolog.New(w).With().Timestamp().Logger(), nil
}

// SetLogLevel changes the global log level.
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
