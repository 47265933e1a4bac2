// Package logging provides the structured logger factory for the
// gatekeepd server.
//
// It configures [log/slog] with a JSON or text handler and a configurable
// minimum level. JSON is the production default.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a [slog.Logger] writing to stderr at the given level in the
// given format. Accepted levels (case-insensitive): "debug", "info",
// "warn", "error"; empty defaults to "info". Accepted formats: "json"
// (default) and "text".
func New(level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a [slog.Logger] writing to w.
func NewWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel converts a level string to a [slog.Level].
// Returns [slog.LevelInfo] for unrecognised values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
