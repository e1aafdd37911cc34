// Package logging builds the process-wide slog logger: text or JSON on stdout,
// optionally teed into a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options for New.
type Options struct {
	// Level is debug, info, warn or error (default info).
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	// Format is json or text (default json).
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	// File enables rotation into this path when set.
	File string `yaml:"file"`
	// MaxSizeMB, MaxBackups and MaxAgeDays tune rotation.
	MaxSizeMB  int  `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int  `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New builds a logger writing to stdout (and the rotating file, if any).
// The returned closer flushes and closes the file; it is a no-op otherwise.
func New(opts Options, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	w := stdout
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		w = io.MultiWriter(stdout, file)
		closer = file
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch opts.Format {
	case "text":
		h = slog.NewTextHandler(w, handlerOpts)
	case "", "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

// Setup builds the logger and installs it as slog's default.
func Setup(opts Options) (io.Closer, error) {
	logger, closer, err := New(opts, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
