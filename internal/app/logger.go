package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// parseLevel maps a level name to a slog.Level. Empty means info.
func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
