package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so audit-tagged lines stay
// machine-parseable alongside the persisted audit trail.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
