package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
)

// serviceName is attached to every record as the "service" attribute.
const serviceName = "supermqtt"

// Logger wraps slog.Logger with supermqtt defaults. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to w in the configured format and level,
// tagging every record with service and version.
func New(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Writer resolves logging.output to a destination: "stderr", "discard" (or
// "none"), and stdout for anything else.
func Writer(output string, stdout, stderr io.Writer) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return stderr
	case "discard", "none":
		return io.Discard
	default:
		return stdout
	}
}

// parseLevel maps debug, info, warn and error; anything else is info.
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

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Nop returns a logger that discards everything.
// Library types fall back to it when no logger is supplied.
func Nop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}
