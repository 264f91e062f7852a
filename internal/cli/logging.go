package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/reearth/cms-items-api/internal/constants"
)

// SetVerbosity sets the logging level of the default logger from the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(level int) {
	slog.SetLogLoggerLevel(Level(level))
}

// SetSlog sets the logging level and format of the default logger.
// JSON logs are written to stdout.
func SetSlog(level int, jsonLogs bool) {
	if jsonLogs {
		slog.SetDefault(NewJSONLogger(os.Stdout, level))
		return
	}

	SetVerbosity(level)
}

// NewJSONLogger returns a logger writing JSON records to w, at the level matching the verbose flag count.
func NewJSONLogger(w io.Writer, level int) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(level)}))
}

// Level returns the logging level matching the verbose flag count.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return constants.DefaultLogLevel
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
