package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger builds the process-wide structured logger. Records go to
// stdout as JSON and carry the service name, so API traffic and index
// rebuild events stay separable in a shared stream. Unknown level strings
// fall back to info.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	text := strings.TrimSpace(level)
	if strings.EqualFold(text, "warning") {
		text = "warn"
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(text)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
