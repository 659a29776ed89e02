// Package log configures the process-wide structured logger.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to its slog level. Unknown names fall back
// to info so a typo in LOG_LEVEL never silences the process.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// NewLogger builds a text logger writing to w, tagged with the service name
// so aggregated log streams stay attributable.
func NewLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler).With("service", service)
}

// Setup installs the service logger as the process default and returns it.
func Setup(service, level string) *slog.Logger {
	logger := NewLogger(os.Stderr, service, level)
	slog.SetDefault(logger)

	return logger
}

// WithModule derives a module-scoped logger from the process default.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
