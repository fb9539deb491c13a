package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a text logger with the level taken from LOG_LEVEL.
func New(service string) *slog.Logger {
	return NewLevel(service, os.Getenv("LOG_LEVEL"))
}

// NewLevel constructs a stderr text logger with an explicit level name.
// Batch jobs log to stderr so stdout stays free for summaries.
func NewLevel(service, level string) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h).With("service", service)
}

// Discard returns a logger that drops everything; used by tests and library defaults.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
