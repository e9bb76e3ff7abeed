package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jgivc/netfshare/internal/config"
)

// newLogger builds the root logger. The returned closer is nil unless output is a file.
func newLogger(cfg *config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	lo := &slog.HandlerOptions{}
	switch cfg.Level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	var (
		w      io.Writer
		closer io.Closer
	)
	switch cfg.Output {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open log file: %w", err)
		}
		w, closer = f, f
	}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, lo)
	} else {
		h = slog.NewTextHandler(w, lo)
	}

	return slog.New(h), closer, nil
}
