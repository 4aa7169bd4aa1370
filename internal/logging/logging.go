// Package logging configures the process-wide slog logger and the credential
// redaction applied to everything it emits.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs the default logger at the configured level, wrapped in a
// redaction handler for the given secrets. Verbose forces debug level.
func Setup(level string, verbose bool, secrets ...string) {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(NewRedactingHandler(h, secrets...)))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
