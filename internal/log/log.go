// Package log provides structured logging for go-autoframe.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	mu     sync.Mutex
	file   io.Closer
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// File, when set, also writes logs to a size-rotated file.
	File string

	// JSON forces the JSON handler. GO_ENV=production implies it.
	JSON bool
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger from opts. The returned closer releases the log
// file and is nil when no file is used.
func New(opts Options) (*slog.Logger, io.Closer) {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	// Use JSON in production, text in development
	if opts.JSON || os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(w, hopts)), closer
	}
	return slog.New(slog.NewTextHandler(w, hopts)), closer
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWithOptions(Options{Level: level})
}

// InitWithFile initializes the global logger writing to stdout and a
// rotating log file.
func InitWithFile(level, path string) {
	InitWithOptions(Options{Level: level, File: path})
}

// InitWithOptions replaces the global logger and slog's default.
func InitWithOptions(opts Options) {
	l, closer := New(opts)

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	logger, file = l, closer
	slog.SetDefault(l)
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
