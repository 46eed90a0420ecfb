package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ppiankov/tagwatch/internal/config"
)

// setupLogging installs the default slog logger on stderr. Empty arguments
// keep the current setting; config values are applied later by applyLogConfig.
func setupLogging(level, format string) error {
	if level == "" {
		level = config.DefaultLogLevel
	}
	if format == "" {
		format = config.DefaultLogFormat
	}
	logger, err := newLogger(os.Stderr, level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// applyLogConfig re-applies logging from the loaded config. Flags win.
func applyLogConfig(cfg *config.Config) error {
	level, format := cfg.Log.Level, cfg.Log.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	return setupLogging(level, format)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format: unknown format %q (want text or json)", format)
	}
}
