// Package logging installs the slog logger used across the client.
//
//	logging.Setup(logging.Options{Level: "debug", Format: "json"})
//	slog.Info("joined channel", "channel", "pve_1")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the level, encoding and destination of log records.
// Zero values mean info, text and stderr.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

var formats = map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
	"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
	"json": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) },
}

func normalize(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return s
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levels[normalize(name, "info")]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: %s)", name, LevelNames())
	}
	return level, nil
}

// LevelNames lists the accepted level names for -help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Validate checks a level name.
func Validate(level string) error {
	_, err := ParseLevel(level)
	return err
}

// ValidateFormat checks a format name.
func ValidateFormat(format string) error {
	if _, ok := formats[normalize(format, "text")]; !ok {
		return fmt.Errorf("unknown log format %q (valid: text, json)", format)
	}
	return nil
}

// New builds a logger from opts without installing it. Debug loggers
// record the call site.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handler := formats[normalize(opts.Format, "text")](out, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	return slog.New(handler), nil
}

// Setup installs the logger described by opts as the slog default.
func Setup(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
