// Package obs carries the ambient observability stack: structured logging
// and Prometheus metrics, wired the way the rest of the corpus wires them
// (log/slog for structured logs, prometheus/client_golang for counters and
// histograms) rather than bespoke logging.
package obs

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger configures the process-wide slog default logger.
// format: "json" for production, "text" for local development.
// level: "debug", "info", "warn", "error".
func InitLogger(format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Component returns a logger tagged with a component name, the convention
// every package in this repo uses instead of ad hoc log.Printf calls.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
