// Package logging provides structured logging for iptsd on top of
// log/slog, plus the audit trail and crash dump writers the daemon
// uses for its rare lifecycle events.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is re-exported so callers don't need to import slog for it.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the handler encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config controls where and how the daemon logs.
type Config struct {
	// Level is the minimum level that gets written.
	Level Level

	// Format selects text or JSON encoding.
	Format Format

	// Output is "stderr", "file", or "both".
	Output string

	// FilePath is the log file used when Output includes "file".
	FilePath string

	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int64

	// MaxBackups bounds how many rotated files are kept.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool

	// AddSource includes file:line in each record.
	AddSource bool
}

// DefaultConfig logs human-readable text to stderr, the right default
// for a daemon run under a service manager that captures stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      levelFromEnv(),
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   filepath.Join(StateDir(), "iptsd.log"),
		MaxSizeMB:  20,
		MaxBackups: 4,
		Compress:   true,
	}
}

// StateDir returns the directory for logs, audit records and crash
// dumps, following XDG conventions.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "iptsd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "iptsd")
	}
	return filepath.Join(home, ".local", "state", "iptsd")
}

func levelFromEnv() Level {
	if s := os.Getenv("IPTSD_LOG_LEVEL"); s != "" {
		if lvl, err := ParseLevel(s); err == nil {
			return lvl
		}
	}
	return LevelInfo
}

// Logger is a slog.Logger bound to an optional rotating file.
type Logger struct {
	*slog.Logger
	rotator *FileRotator
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide logger, creating a stderr text
// logger on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default()}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// SetDefault installs l as the process-wide logger and as slog's
// default, so stray slog calls land in the same place.
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// New builds a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{}

	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "file", "both":
		rot, err := NewFileRotator(cfg.FilePath, cfg.MaxSizeMB*1024*1024, cfg.MaxBackups, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.rotator = rot
		if cfg.Output == "both" {
			w = io.MultiWriter(os.Stderr, rot)
		} else {
			w = rot
		}
	default:
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l.Logger = slog.New(h)
	return l, nil
}

// WithComponent tags all records from the returned logger with a
// component name, e.g. "touch" or "stylus".
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		rotator: l.rotator,
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes the log file, if any.
func (l *Logger) Sync() error {
	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

// Package-level shorthands against the default logger.

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

func Info(msg string, args ...any) { Default().Info(msg, args...) }

func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

func Error(msg string, args ...any) { Default().Error(msg, args...) }

// ParseLevel converts a config string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}
