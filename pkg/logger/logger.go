// Package logger provides structured logging for the runtime, built on
// log/slog. Components obtain a logger through Get and attach key-value
// context with With.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	current *slog.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// Init configures the process-wide logger.
func Init(level slog.Level, output io.Writer, format Format) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	mu.Lock()
	defer mu.Unlock()
	current = slog.New(handler)
}

// Get returns the process-wide logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// With returns the process-wide logger with attached attributes.
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
