package config

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the process-wide structured logger.
var Logger = newLogger()

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
}

func logLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("NOVELSTREAM_LOG_LEVEL"))) {
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
