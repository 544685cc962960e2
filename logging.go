package imapc

import (
	"os"

	"github.com/rs/zerolog"
)

// componentLogger returns a zerolog.Logger scoped to component,
// adapting the teacher's per-session "IMAP (%d) " log preamble: the
// component name takes the numeric client id's place, since a sans-I/O
// engine has no connection of its own to number.
func componentLogger(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Logger is a package-wide logger for code outside the engine (the demo
// client uses it). An Engine built without WithLogger does not use it;
// it gets its own "imapc.engine" component logger.
var Logger = componentLogger("imapc")
