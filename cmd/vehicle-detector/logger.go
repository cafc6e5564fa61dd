package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kstaniek/gbt43229-signal-link/internal/logging"
)

func setupLogger(cfg *appConfig) (*slog.Logger, func(), error) {
	lvl, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.logFile != "" {
		f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	l := logging.New(cfg.logFormat, lvl, w).With("app", "vehicle-detector")
	logging.Set(l)
	return l, closeFn, nil
}
