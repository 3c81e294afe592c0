// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"storefront/internal/config"
)

// Setup installs and returns the default logger. Production and format=json
// use the JSON handler; everything else logs text.
func Setup(cfg config.Config) *slog.Logger {
	return setup(os.Stdout, cfg)
}

func setup(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Log.Level)}
	if !cfg.IsProduction() && cfg.Log.Level == "" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.IsProduction() || strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", "storefront")
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug, info, warn and error; anything else is info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
