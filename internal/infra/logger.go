package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger with sane defaults for the service.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" || appEnv == "cli" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

// NopLogger returns a logger that drops every event. Components fall back to it
// when the caller does not provide one.
func NopLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// LoggerOrNop dereferences l, or returns a discarding logger for nil.
func LoggerOrNop(l *Logger) Logger {
	if l == nil {
		return *NopLogger()
	}
	return *l
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger
