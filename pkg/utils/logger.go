package utils

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// InitLogger configures the process-wide slog logger.
// Level comes from CREWROOM_LOG_LEVEL (debug|info|warn|error), default info.
func InitLogger() {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(os.Getenv("CREWROOM_LOG_LEVEL")) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

// GetLogger returns the shared logger, initializing it on first use.
func GetLogger() *slog.Logger {
	InitLogger()
	return logger
}

// MaskSensitiveString hides the middle of a secret, keeping a short prefix
// and suffix so users can still recognize which credential it is.
func MaskSensitiveString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
