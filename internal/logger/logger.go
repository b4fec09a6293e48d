// Package logger provides structured logging for the tick collector using
// the standard library's slog package, with component-scoped loggers,
// configurable output formats, and rotated file output.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/johnayoung/go-tick-collector/internal/config"
)

// Manager owns the base logger and the underlying writer so callers can
// close file-backed output on shutdown.
type Manager struct {
	base   *slog.Logger
	writer io.WriteCloser
}

// New creates a logger manager from the logging configuration.
func New(cfg config.LoggingConfig) (*Manager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Manager{
		base:   slog.New(handler),
		writer: writer,
	}, nil
}

// Base returns the root logger.
func (m *Manager) Base() *slog.Logger {
	return m.base
}

// Component returns a logger scoped to a named component.
func (m *Manager) Component(name string) *slog.Logger {
	return m.base.With("component", name)
}

// Close releases the underlying writer. Safe to call for stdout/stderr
// output, where it is a no-op.
func (m *Manager) Close() error {
	if m.writer == nil {
		return nil
	}
	return m.writer.Close()
}

// nopCloser wraps a non-closable writer such as stdout.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// createWriter builds the output writer from configuration, using
// lumberjack rotation for file output.
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stderr":
		return nopCloser{os.Stderr}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file output requires a file path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	default:
		return nopCloser{os.Stdout}, nil
	}
}

// parseLevel converts a level name to a slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
