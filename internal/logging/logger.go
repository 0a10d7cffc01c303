package logging

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger on stdout, tagged with the binary name.
func NewLogger(service string, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", service)
}
