package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/golang-cz/devslog"
)

// ParseLevel maps a level name to a slog.Level. Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger sets up a slog logger with the given level, format, and file path.
// Without a file path it logs to stderr, stdout is left for function output.
func SetupLogger(level, format, filePath string) (*slog.Logger, error) {
	var writer io.Writer = os.Stderr
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	}
	return NewLogger(writer, level, format), nil
}

// NewLogger builds a logger writing to w. format is one of text, json or dev.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "dev":
		handler = devslog.NewHandler(w, &devslog.Options{
			HandlerOptions:    opts,
			MaxSlicePrintSize: 5,
			SortKeys:          true,
		})
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
