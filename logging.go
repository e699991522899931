package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pthm-cable/seisinv/config"
)

// newLogger builds the process logger. Without console output, records go to
// <out>/logs/<run>_<seed>_log.log. The returned closer releases the file.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if !cfg.Logging.Console {
		dir := filepath.Join(cfg.Derived.OutDir, "logs")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s_%d_log.log", cfg.Run.Name, cfg.Run.Seed)))
		if err != nil {
			return nil, nil, fmt.Errorf("creating log file: %w", err)
		}
		w, closer = f, f
	}

	var h slog.Handler
	switch cfg.Logging.Format {
	case "text":
		h = slog.NewTextHandler(w, hopts)
	default:
		h = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(h), closer, nil
}
