package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/opero/opero-tts/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLog configures the default logger. With a log file set, output goes
// to a size-rotated file instead of stderr.
func setupLog(c config.LogConfig) (func() error, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if c.File == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(w)
	log.SetFormatter(log.LogfmtFormatter)
	return w.Close, nil
}
