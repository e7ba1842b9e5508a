// Package log provides the process-wide zerolog constructor.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Binaries replace it at startup via
// SetGlobal; components derive their own loggers from it with
// Logger.With().Str("component", ...).Logger().
var Logger = New("info", false)

// SetGlobal replaces the process-wide root logger.
func SetGlobal(l zerolog.Logger) {
	Logger = l
}

// New builds a root logger at the given level.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w = zerolog.LevelWriter(zerolog.MultiLevelWriter(os.Stdout))
	if pretty {
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a disabled logger, for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
