// Package logging builds the host's slog logger and bridges the core
// debug writer into it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"nojerky/core"
)

// Config controls basic logger behaviour.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	AddSource bool   // include source locations
}

// New constructs a slog logger writing to w, defaulting to stderr.
func New(w io.Writer, cfg Config) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// BridgeCore routes core debug output into the logger. Core debug output
// is enabled only when the logger accepts debug records.
func BridgeCore(logger *slog.Logger) {
	core.SetDebugWriter(func(msg string) {
		logger.Debug(strings.TrimSpace(msg), slog.String("component", "core"))
	})
	core.SetDebugEnabled(logger.Enabled(context.Background(), slog.LevelDebug))
}

// WithCommandID tags a logger with a fresh command id
func WithCommandID(logger *slog.Logger) (*slog.Logger, string) {
	id := uuid.NewString()
	return logger.With(slog.String("command_id", id)), id
}
