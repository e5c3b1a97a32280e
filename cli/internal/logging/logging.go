package logging

import (
	"log/slog"
	"os"

	"github.com/pion/logging"
)

// Level returns the slog level selected by LOG_LEVEL. Production only
// shows errors.
func Level() slog.Level {
	level := slog.LevelError

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}
	return level
}

func Init() {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: Level(),
		}),
	)
	slog.SetDefault(logger)
}

// PionFactory returns a pion logger factory whose level follows LOG_LEVEL,
// so WebRTC internals stay quiet unless debugging.
func PionFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = os.Stderr

	switch Level() {
	case slog.LevelDebug:
		f.DefaultLogLevel = logging.LogLevelDebug
	case slog.LevelInfo:
		f.DefaultLogLevel = logging.LogLevelInfo
	case slog.LevelWarn:
		f.DefaultLogLevel = logging.LogLevelWarn
	default:
		f.DefaultLogLevel = logging.LogLevelError
	}
	return f
}
