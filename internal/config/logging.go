package config

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to info; the validator rejects them when the full config loads.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewLogger returns the JSON logger every entry point writes with. Entry points
// build it before LoadConfig so configuration failures are logged as JSON too.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)}))
}
