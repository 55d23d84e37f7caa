package platform

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger sets up the process logger. JSON handler on stderr so the
// plan output on stdout stays clean; every record carries the run id
// for correlation with audit rows.
func InitLogger(level, runID string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})).With("run_id", runID)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func LogFatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
