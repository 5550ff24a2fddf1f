package app

import (
	"io"
	"log/slog"

	"github.com/vk/wormhole/internal/config"
)

// newLogger creates the process logger from the log block. It does not set
// the global logger, allowing for isolated logger instances. Unknown levels
// fall back to info.
func newLogger(cfg config.Log, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(outW, handlerOpts)
	default:
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler).With("app", "wormhole")
}
