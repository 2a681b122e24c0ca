package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/use-agent/tokscrape/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// initLogger configures slog based on the LogConfig. One-shot commands log
// to stderr so stdout carries only the JSON record.
func initLogger(cfg config.LogConfig, toStderr bool) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if toStderr {
		out = os.Stderr
	}
	if cfg.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
}
