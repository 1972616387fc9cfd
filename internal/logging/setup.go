// Package logging builds the slog handlers used by the CLI and server.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Levels accepted by New.
var Levels = []string{"trace", "debug", "info", "warn", "error"}

// Formats accepted by New.
var Formats = []string{"text", "json"}

// ValidLevel reports whether level is one of Levels (case-insensitive, "warning" allowed).
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// ValidFormat reports whether format is one of Formats.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return true
	}
	return false
}

// SetupHandlerText builds a charmbracelet/log handler for terminals.
func SetupHandlerText(level string, w io.Writer) slog.Handler {
	if w == nil {
		w = os.Stderr
	}
	reportCaller := false
	reportTimestamp := true
	lvl := log.InfoLevel
	switch strings.ToLower(level) {
	case "trace":
		reportCaller = true
		lvl = log.DebugLevel
	case "debug":
		lvl = log.DebugLevel
	case "warn", "warning":
		lvl = log.WarnLevel
	case "error":
		lvl = log.ErrorLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: reportTimestamp,
		ReportCaller:    reportCaller,
		Level:           lvl,
		Prefix:          "insightline",
	})
}

// SetupHandlerJSON builds a slog JSON handler for log shipping.
func SetupHandlerJSON(level string, w io.Writer) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch strings.ToLower(level) {
	case "trace":
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn", "warning":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	return slog.NewJSONHandler(w, opts)
}

// New returns a logger for the given level and format.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	if !ValidLevel(level) {
		return nil, fmt.Errorf("unknown log level %q (want one of %s)", level, strings.Join(Levels, ", "))
	}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(SetupHandlerText(level, w)), nil
	case "json":
		return slog.New(SetupHandlerJSON(level, w)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// SetupLogger installs a logger as the slog default and returns it.
func SetupLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	logger, err := New(level, format, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
