// Package logging configures the process-wide slog default logger.
//
// Development mode writes human-readable text to stderr. Production mode
// writes JSON through a rotating file so long-running agents don't fill
// the disk.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dexterhq/dexter/internal/config"
)

// Setup installs the default slog logger per the config. It returns a
// closer for the rotating file writer; callers defer it on shutdown.
func Setup(cfg config.LoggingConfig) io.Closer {
	level := parseLevel(cfg.Level)

	if strings.EqualFold(cfg.Mode, "production") {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(config.ExpandHome(cfg.Dir), "dexter.log"),
			MaxSize:    cfg.RotationMB,
			MaxAge:     cfg.RetentionDy,
			Compress:   cfg.Compression,
			MaxBackups: 5,
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(rotator, &slog.HandlerOptions{
			Level: level,
		})))
		return rotator
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	return nopCloser{}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
